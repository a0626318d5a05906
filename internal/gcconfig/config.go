// Package gcconfig resolves the tunable knobs spec.md §6 lists as
// compile-time constants in the source system into a loadable,
// validated Config document, plus an optional hot-reload watcher for
// long-running hosts.
//
// Grounded on SeleniaProject-Orizon/internal/cli/common.go's
// encoding/json config-document shape, generalized from a CLI
// version-info document to this collector's knob set.
package gcconfig

import (
	"encoding/json"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/regiongc/regiongc/internal/gcerr"
)

// SupportedSchemaRange is the semver constraint a config document's
// SchemaVersion must satisfy to be accepted.
const SupportedSchemaRange = ">=1.0.0, <2.0.0"

// Config is the collector's full tunable set, per spec.md §6's table.
// Built once at Initialize time and treated as immutable for the life
// of the collector process; the Watcher only ever hands the host a
// freshly validated replacement document, never mutates one in place.
type Config struct {
	SchemaVersion string `json:"schema_version"`

	ConcurrentGC       bool `json:"concurrent_gc"`
	MemoryAllocator    bool `json:"memory_allocator"`
	Relocation         bool `json:"relocation"`
	ParallelGC         bool `json:"parallel_gc"`
	DestructorSupport  bool `json:"destructor_support"`
	RegionalHashmap    bool `json:"regional_hashmap"`
	InlineMarkState    bool `json:"inline_mark_state"`
	DistinctSATB       bool `json:"distinct_satb"`
	DeferRemoveRoot    bool `json:"defer_remove_root"`
	PointerRWLock      bool `json:"pointer_rw_lock"`
	WeakSTWLock        bool `json:"weak_stw_lock"`

	PoolSize   int    `json:"pool_size"`
	LogLevel   string `json:"log_level"`
}

// Default returns spec.md §6's documented defaults, except that
// InlineMarkState is true: every handle in this port carries an inline
// mark state.
func Default() *Config {
	return &Config{
		SchemaVersion:     "1.0.0",
		ConcurrentGC:      true,
		MemoryAllocator:   true,
		Relocation:        false,
		ParallelGC:        true,
		DestructorSupport: true,
		RegionalHashmap:   false,
		InlineMarkState:   true, // this port always inlines the color; see Validate
		DistinctSATB:      false,
		DeferRemoveRoot:   false,
		PointerRWLock:     true,
		WeakSTWLock:       false,
		PoolSize:          4,
		LogLevel:          "info",
	}
}

// Validate rejects configuration combinations spec.md §7 names as
// Configuration errors: relocation without the region allocator or
// without inline mark state, and a schema version outside the
// collector's supported range.
func (c *Config) Validate() error {
	if c.Relocation && !c.MemoryAllocator {
		return gcerr.New(gcerr.Config, "gcconfig: relocation requires the region memory allocator")
	}
	if c.Relocation && !c.InlineMarkState {
		return gcerr.New(gcerr.Config, "gcconfig: relocation requires inline mark state on handles")
	}
	if c.PoolSize <= 0 {
		return gcerr.New(gcerr.Config, "gcconfig: pool_size must be positive")
	}
	if c.SchemaVersion == "" {
		return gcerr.New(gcerr.Config, "gcconfig: schema_version is required")
	}
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return gcerr.Wrap(gcerr.Config, "gcconfig: schema_version is not a valid semver", err)
	}
	constraint, err := semver.NewConstraint(SupportedSchemaRange)
	if err != nil {
		return gcerr.Wrap(gcerr.Invariant, "gcconfig: supported schema constraint failed to parse", err)
	}
	if !constraint.Check(v) {
		return gcerr.New(gcerr.Config, "gcconfig: schema_version "+c.SchemaVersion+" is outside the supported range "+SupportedSchemaRange)
	}
	return nil
}

// Load reads and validates a config document from path. Decoding starts
// from Default(), so the document only needs to specify overrides: every
// field present in the JSON replaces the default's value, and every
// field the document omits keeps its Default() value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gcerr.Wrap(gcerr.Config, "gcconfig: reading config file", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, gcerr.Wrap(gcerr.Config, "gcconfig: parsing config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
