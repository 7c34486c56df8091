package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/perfsuite/bench-driver/flags"
	"github.com/perfsuite/bench-driver/types"
)

// Config holds the application configuration
type Config struct {
	SuiteDir        string        // Directory containing unit subdirectories
	RuntimeDir      string        // Normalized absolute runtime directory path
	Manifest        string        // Optional suite manifest file
	UnitFilter      []string      // Restrict the run to these units
	Discover        bool          // Discover units by scanning the suite dir
	Verb            types.Verb    // Aggregate action for this invocation
	MakeBinary      string        // Path to the make binary
	RunInterval     time.Duration // Interval between suite runs
	RunOnce         bool          // Indicates if the service should exit after one suite run
	ContinueOnError bool          // Attempt remaining units after a failure instead of fail-fast
	AllowMissing    bool          // Skip units whose directory is missing
	UnitTimeout     time.Duration // Default timeout for a single unit sub-invocation
	LogDir          string        // Directory to store unit output logs
	SuiteName       string        // Suite name reported in metrics
	Log             log.Logger
}

// NewConfig creates a new Config from cli context. The runtime directory is
// resolved to an absolute path exactly once here, so every unit
// sub-invocation of this top-level invocation observes the identical value
// no matter which subdirectory it runs in.
func NewConfig(ctx *cli.Context, log log.Logger, verb types.Verb) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if !verb.IsValid() {
		return nil, fmt.Errorf("invalid verb %q", verb)
	}

	runtimeDir := ctx.String(flags.RuntimeDir.Name)
	absRuntimeDir, err := resolveRuntimeDir(runtimeDir)
	if err != nil {
		return nil, err
	}

	suiteDir := ctx.String(flags.SuiteDir.Name)
	absSuiteDir, err := filepath.Abs(suiteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite directory '%s': %w", suiteDir, err)
	}
	if info, err := os.Stat(absSuiteDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("suite directory '%s' does not exist", absSuiteDir)
	}

	var absManifest string
	if manifest := ctx.String(flags.Manifest.Name); manifest != "" {
		absManifest, err = filepath.Abs(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifest, err)
		}
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		SuiteDir:        absSuiteDir,
		RuntimeDir:      absRuntimeDir,
		Manifest:        absManifest,
		UnitFilter:      ctx.StringSlice(flags.Units.Name),
		Discover:        ctx.Bool(flags.Discover.Name),
		Verb:            verb,
		MakeBinary:      ctx.String(flags.MakeBinary.Name),
		RunInterval:     runInterval,
		RunOnce:         runOnce,
		ContinueOnError: ctx.Bool(flags.ContinueOnError.Name),
		AllowMissing:    ctx.Bool(flags.AllowMissing.Name),
		UnitTimeout:     ctx.Duration(flags.UnitTimeout.Name),
		LogDir:          logDir,
		SuiteName:       ctx.String(flags.SuiteName.Name),
		Log:             log,
	}, nil
}

// resolveRuntimeDir normalizes the configured runtime directory to an
// absolute path and requires it to name an existing directory. A missing or
// unresolvable value is a configuration error, fatal before any unit runs.
func resolveRuntimeDir(runtimeDir string) (string, error) {
	if runtimeDir == "" {
		return "", fmt.Errorf("runtime directory is required")
	}
	abs, err := filepath.Abs(runtimeDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for runtime directory '%s': %w", runtimeDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("runtime directory '%s' does not exist", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("runtime directory '%s' is not a directory", abs)
	}
	return abs, nil
}
