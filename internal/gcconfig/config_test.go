package gcconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/regiongc/regiongc/internal/gclog"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestValidateRejectsRelocationWithoutAllocator(t *testing.T) {
	cfg := Default()
	cfg.Relocation = true
	cfg.MemoryAllocator = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a configuration error for relocation without the memory allocator")
	}
}

func TestValidateRejectsOutOfRangeSchema(t *testing.T) {
	cfg := Default()
	cfg.SchemaVersion = "2.5.0"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a configuration error for a schema_version outside the supported range")
	}
}

func TestLoadSeedsFromDefaultsThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gc.json")
	if err := os.WriteFile(path, []byte(`{"schema_version":"1.2.0","pool_size":8}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolSize != 8 {
		t.Fatalf("expected overridden pool_size 8, got %d", cfg.PoolSize)
	}
	if !cfg.ConcurrentGC {
		t.Fatal("expected concurrent_gc to keep its default (true) since the document didn't override it")
	}
}

func TestWatcherEmitsReloadedConfigOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gc.json")
	if err := os.WriteFile(path, []byte(`{"schema_version":"1.0.0","pool_size":4}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, gclog.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"schema_version":"1.0.0","pool_size":16}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-w.Updates():
		if cfg.PoolSize != 16 {
			t.Fatalf("expected reloaded pool_size 16, got %d", cfg.PoolSize)
		}
	case err := <-w.Errors():
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
