// Package registry manages the set of benchmark units known to the driver.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/perfsuite/bench-driver/types"
)

// DefaultUnits is the built-in benchmark suite, in declaration order.
// Order affects only display and log sequencing; units are independent.
var DefaultUnits = []types.UnitMetadata{
	{Name: "event_latency", Description: "single-event trigger/wait latency"},
	{Name: "event_throughput", Description: "event triggers completed per second"},
	{Name: "lock_chains", Description: "chained lock grant latency"},
	{Name: "lock_contention", Description: "lock grants under contention"},
	{Name: "reducetest", Description: "reduction operation correctness and throughput"},
	{Name: "task_throughput", Description: "task spawns completed per second"},
}

// Registry holds the resolved, ordered unit set for one driver invocation.
type Registry struct {
	config Config
	units  []types.UnitMetadata
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	ManifestFile   string // optional YAML manifest overriding the built-in unit set
	DefaultTimeout time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}

	if err := r.loadUnits(); err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(units)", len(r.units))

	return r, nil
}

// loadUnits populates the unit set from the manifest, or from the built-in
// defaults when no manifest is configured.
func (r *Registry) loadUnits() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.ManifestFile == "" {
		r.units = applyDefaultTimeout(DefaultUnits, r.config.DefaultTimeout)
		return nil
	}

	manifest, err := loadManifest(r.config.ManifestFile)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	units, err := unitsFromManifest(manifest, r.config.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	r.units = units
	return nil
}

// loadManifest reads and parses a suite manifest file
func loadManifest(path string) (*types.SuiteManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var manifest types.SuiteManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}

	return &manifest, nil
}

// unitsFromManifest converts manifest entries into unit metadata,
// preserving declaration order.
func unitsFromManifest(manifest *types.SuiteManifest, defaultTimeout time.Duration) ([]types.UnitMetadata, error) {
	if len(manifest.Units) == 0 {
		return nil, fmt.Errorf("manifest declares no units")
	}

	seen := make(map[string]struct{}, len(manifest.Units))
	units := make([]types.UnitMetadata, 0, len(manifest.Units))
	for i, cfg := range manifest.Units {
		if cfg.Name == "" {
			return nil, fmt.Errorf("unit at index %d has no name", i)
		}
		if _, ok := seen[cfg.Name]; ok {
			return nil, fmt.Errorf("duplicate unit %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}

		timeout := defaultTimeout
		if cfg.Timeout != nil {
			timeout = *cfg.Timeout
		}

		units = append(units, types.UnitMetadata{
			Name:        cfg.Name,
			Dir:         cfg.Dir,
			Description: cfg.Description,
			Timeout:     timeout,
		})
	}

	return units, nil
}

func applyDefaultTimeout(units []types.UnitMetadata, timeout time.Duration) []types.UnitMetadata {
	out := make([]types.UnitMetadata, len(units))
	copy(out, units)
	for i := range out {
		if out[i].Timeout == 0 {
			out[i].Timeout = timeout
		}
	}
	return out
}

// GetUnits returns all units in declaration order.
func (r *Registry) GetUnits() []types.UnitMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]types.UnitMetadata, len(r.units))
	copy(units, r.units)
	return units
}

// GetUnitByName returns the unit with the given name.
func (r *Registry) GetUnitByName(name string) (types.UnitMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, unit := range r.units {
		if unit.Name == name {
			return unit, true
		}
	}
	return types.UnitMetadata{}, false
}

// SelectUnits returns the subset of units named in filter, preserving
// declaration order. An empty filter selects every unit. A name that does
// not match any registered unit is a configuration error.
func (r *Registry) SelectUnits(filter []string) ([]types.UnitMetadata, error) {
	if len(filter) == 0 {
		return r.GetUnits(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(filter))
	for _, name := range filter {
		found := false
		for _, unit := range r.units {
			if unit.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown unit %q", name)
		}
		wanted[name] = struct{}{}
	}

	var selected []types.UnitMetadata
	for _, unit := range r.units {
		if _, ok := wanted[unit.Name]; ok {
			selected = append(selected, unit)
		}
	}
	return selected, nil
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// DiscoverUnits scans suiteDir for subdirectories containing a Makefile and
// returns them as units, sorted by name. Used instead of the built-in set
// when discovery mode is enabled.
func DiscoverUnits(suiteDir string, defaultTimeout time.Duration) ([]types.UnitMetadata, error) {
	entries, err := os.ReadDir(suiteDir)
	if err != nil {
		return nil, fmt.Errorf("reading suite directory %s: %w", suiteDir, err)
	}

	var units []types.UnitMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(suiteDir, entry.Name(), "Makefile")); err != nil {
			continue
		}
		units = append(units, types.UnitMetadata{
			Name:    entry.Name(),
			Timeout: defaultTimeout,
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no units with a Makefile found under %s", suiteDir)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

// SetUnits replaces the registry's unit set, preserving the given order.
func (r *Registry) SetUnits(units []types.UnitMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = units
}
