// Package types contains shared types used across the bench-driver suite driver.
package types

import (
	"fmt"
	"time"
)

// Verb is an aggregate action requested of the suite driver.
type Verb string

// Verb enum values
const (
	VerbRun   Verb = "run"
	VerbBuild Verb = "build"
	VerbClean Verb = "clean"
)

// String implements the Stringer interface for Verb
func (v Verb) String() string {
	return string(v)
}

// IsValid reports whether v is one of the supported verbs.
func (v Verb) IsValid() bool {
	switch v {
	case VerbRun, VerbBuild, VerbClean:
		return true
	}
	return false
}

// SubTarget returns the sub-target name passed to the per-unit build tool
// for this verb. The build verb maps to the conventional "all" target.
func (v Verb) SubTarget() string {
	switch v {
	case VerbBuild:
		return "all"
	case VerbClean:
		return "clean"
	default:
		return "run"
	}
}

// ParseVerb parses a verb argument. An empty string is the default verb, run.
func ParseVerb(s string) (Verb, error) {
	if s == "" {
		return VerbRun, nil
	}
	v := Verb(s)
	if !v.IsValid() {
		return "", fmt.Errorf("unknown verb %q (expected one of: %s, %s, %s)", s, VerbRun, VerbBuild, VerbClean)
	}
	return v, nil
}

// Verbs returns all supported verbs in display order.
func Verbs() []Verb {
	return []Verb{VerbRun, VerbBuild, VerbClean}
}

// UnitStatus represents the possible states of a unit sub-invocation
type UnitStatus string

const (
	UnitStatusPass UnitStatus = "pass"
	UnitStatusFail UnitStatus = "fail"
	UnitStatusSkip UnitStatus = "skip"
)

// UnitMetadata identifies one benchmark unit of the suite.
type UnitMetadata struct {
	Name        string
	Dir         string // subdirectory relative to the suite dir, defaults to Name
	Description string
	Timeout     time.Duration // 0 means use the driver-wide default
}

// GetDir returns the unit's subdirectory, falling back to the unit name.
func (u UnitMetadata) GetDir() string {
	if u.Dir != "" {
		return u.Dir
	}
	return u.Name
}

// UnitResult captures the outcome of a single unit sub-invocation.
type UnitResult struct {
	Metadata UnitMetadata
	Verb     Verb
	Status   UnitStatus
	Error    error
	Duration time.Duration
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool

	// Interval tracking; sub-invocations are strictly sequential, so
	// intervals of consecutive units must never overlap.
	StartTime time.Time
	EndTime   time.Time
}

// SuiteManifest is the YAML shape of an optional suite manifest file.
type SuiteManifest struct {
	Suite struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
	} `yaml:"suite"`
	Units []UnitConfig `yaml:"units"`
}

// UnitConfig is a single unit entry in a suite manifest.
type UnitConfig struct {
	Name        string         `yaml:"name"`
	Dir         string         `yaml:"dir,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Timeout     *time.Duration `yaml:"timeout,omitempty"`
}
