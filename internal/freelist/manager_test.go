package freelist

import "testing"

func TestManagerAllocateGrowsAndFrees(t *testing.T) {
	m := NewManager(2)
	defer m.Shutdown()

	addr, err := m.Allocate(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr == 0 {
		t.Fatal("expected non-zero address")
	}
	if m.TotalMapped() < InitialSingleSize {
		t.Fatalf("expected at least one InitialSingleSize extent mapped, got %d", m.TotalMapped())
	}

	m.Free(addr, 64)
	if m.TotalFree() == 0 {
		t.Fatal("expected freed bytes to be reflected back in a pool")
	}
}

func TestManagerReusesExistingExtentBeforeGrowing(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()

	first, err := m.Allocate(64)
	if err != nil {
		t.Fatal(err)
	}
	mappedAfterFirst := m.TotalMapped()
	m.Free(first, 64)

	if _, err := m.Allocate(64); err != nil {
		t.Fatal(err)
	}
	if m.TotalMapped() != mappedAfterFirst {
		t.Fatalf("second allocate should reuse freed space, not grow: mapped went from %d to %d", mappedAfterFirst, m.TotalMapped())
	}
}
