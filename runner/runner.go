package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/perfsuite/bench-driver/logging"
	"github.com/perfsuite/bench-driver/metrics"
	"github.com/perfsuite/bench-driver/types"
)

// RuntimeDirVar is the configuration key carrying the normalized absolute
// runtime directory path into every sub-invocation. It is passed both as a
// make command-line override and as an environment variable, so a unit's
// build description can consume it either way.
const RuntimeDirVar = "RUNTIME_DIR"

// SuiteResult captures the complete result of one aggregate invocation.
type SuiteResult struct {
	RunID    string
	Verb     types.Verb
	Units    []*types.UnitResult // attempted units, in declaration order
	Status   types.UnitStatus
	Duration time.Duration
	Stats    ResultStats

	// FirstFailure names the first failing unit under the fail-fast
	// policy; empty when every attempted unit succeeded.
	FirstFailure string
	// NotAttempted lists units never started because an earlier unit failed.
	NotAttempted []string
}

// ResultStats tracks unit statistics for a suite run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// SuiteRunner defines the interface for driving the benchmark suite
type SuiteRunner interface {
	RunSuite(ctx context.Context) (*SuiteResult, error)
	RunUnit(ctx context.Context, unit types.UnitMetadata) (*types.UnitResult, error)
}

// SuiteRunnerWithFileLogger extends the SuiteRunner interface with a method
// to set the file logger after creation
type SuiteRunnerWithFileLogger interface {
	SuiteRunner
	SetFileLogger(logger *logging.FileLogger)
}

// runner struct implements SuiteRunner interface
type runner struct {
	units           []types.UnitMetadata
	suiteDir        string // directory containing the unit subdirectories
	runtimeDir      string // normalized absolute runtime directory path
	verb            types.Verb
	makeBinary      string
	continueOnError bool // attempt remaining units after a failure
	allowMissing    bool // treat a missing unit directory as a skip instead of a failure
	suiteName       string
	log             log.Logger
	runID           string
	fileLogger      *logging.FileLogger
	tracer          trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Units           []types.UnitMetadata
	SuiteDir        string
	RuntimeDir      string // must already be absolute; resolved once by the driver config
	Verb            types.Verb
	MakeBinary      string
	ContinueOnError bool
	AllowMissing    bool
	SuiteName       string
	Log             log.Logger
	FileLogger      *logging.FileLogger
}

// NewSuiteRunner creates a new suite runner instance. The failure policy
// (fail-fast vs continue-on-error) is fixed here, at construction time.
func NewSuiteRunner(cfg Config) (SuiteRunner, error) {
	if len(cfg.Units) == 0 {
		return nil, fmt.Errorf("no units to run")
	}
	if cfg.SuiteDir == "" {
		return nil, fmt.Errorf("suite directory is required")
	}
	if cfg.RuntimeDir == "" {
		return nil, fmt.Errorf("runtime directory is required")
	}
	if !filepath.IsAbs(cfg.RuntimeDir) {
		return nil, fmt.Errorf("runtime directory %q must be absolute", cfg.RuntimeDir)
	}
	if !cfg.Verb.IsValid() {
		return nil, fmt.Errorf("invalid verb %q", cfg.Verb)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.MakeBinary == "" {
		cfg.MakeBinary = "make"
	}
	suiteName := cfg.SuiteName
	if suiteName == "" {
		suiteName = "default"
	}

	cfg.Log.Debug("NewSuiteRunner()", "verb", cfg.Verb, "suiteDir", cfg.SuiteDir,
		"runtimeDir", cfg.RuntimeDir, "makeBinary", cfg.MakeBinary,
		"continueOnError", cfg.ContinueOnError, "units", len(cfg.Units))

	return &runner{
		units:           cfg.Units,
		suiteDir:        cfg.SuiteDir,
		runtimeDir:      cfg.RuntimeDir,
		verb:            cfg.Verb,
		makeBinary:      cfg.MakeBinary,
		continueOnError: cfg.ContinueOnError,
		allowMissing:    cfg.AllowMissing,
		suiteName:       suiteName,
		log:             cfg.Log,
		fileLogger:      cfg.FileLogger,
		tracer:          otel.Tracer("suite runner"),
	}, nil
}

// RunSuite implements the SuiteRunner interface. Units are invoked strictly
// one at a time, in declaration order; unit k+1 never starts before unit k's
// sub-invocation has completed.
func (r *runner) RunSuite(ctx context.Context) (*SuiteResult, error) {
	// Use fileLogger's runID if available, otherwise generate new
	if r.fileLogger != nil {
		r.runID = r.fileLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s (%s)", r.suiteName, r.verb))
	defer span.End()

	start := time.Now()
	r.log.Debug("Running suite", "run_id", r.runID, "verb", r.verb)

	result := &SuiteResult{
		RunID: r.runID,
		Verb:  r.verb,
		Stats: ResultStats{StartTime: start},
	}

	for i, unit := range r.units {
		// An interrupt aborts the remaining queue; never continue silently.
		if err := ctx.Err(); err != nil {
			r.markNotAttempted(result, i)
			return nil, fmt.Errorf("suite aborted before unit %s: %w", unit.Name, err)
		}

		unitResult, err := r.RunUnit(ctx, unit)
		if err != nil {
			r.markNotAttempted(result, i)
			return nil, fmt.Errorf("running unit %s: %w", unit.Name, err)
		}

		result.Units = append(result.Units, unitResult)
		result.updateStats(unitResult)

		if unitResult.Status == types.UnitStatusFail {
			if result.FirstFailure == "" {
				result.FirstFailure = unit.Name
			}
			if !r.continueOnError {
				r.log.Warn("Unit failed, aborting remaining units (fail-fast)",
					"unit", unit.Name, "verb", r.verb)
				r.markNotAttempted(result, i+1)
				break
			}
			r.log.Warn("Unit failed, continuing (continue-on-error)",
				"unit", unit.Name, "verb", r.verb)
		}
	}

	result.Duration = time.Since(start)
	result.Status = determineSuiteStatus(result)
	result.Stats.EndTime = time.Now()
	return result, nil
}

// markNotAttempted records the names of units from index from onward that
// were never started.
func (r *runner) markNotAttempted(result *SuiteResult, from int) {
	for _, unit := range r.units[from:] {
		result.NotAttempted = append(result.NotAttempted, unit.Name)
	}
}

// RunUnit implements the SuiteRunner interface. It performs exactly one
// sub-invocation of the external build tool inside the unit's subdirectory.
func (r *runner) RunUnit(ctx context.Context, unit types.UnitMetadata) (*types.UnitResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("unit %s", unit.Name))
	defer span.End()

	result := &types.UnitResult{
		Metadata:  unit,
		Verb:      r.verb,
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		metrics.RecordUnitRun(r.suiteName, r.runID, unit.Name, r.verb, result.Status)
		if r.fileLogger != nil {
			if err := r.fileLogger.LogUnitResult(result); err != nil {
				r.log.Error("Failed to write unit log", "unit", unit.Name, "error", err)
			}
		}
	}()

	unitDir := filepath.Join(r.suiteDir, unit.GetDir())
	if info, err := os.Stat(unitDir); err != nil || !info.IsDir() {
		if r.allowMissing {
			r.log.Warn("Unit directory missing, skipping", "unit", unit.Name, "dir", unitDir)
			result.Status = types.UnitStatusSkip
			return result, nil
		}
		result.Status = types.UnitStatusFail
		result.Error = fmt.Errorf("unit directory %s does not exist", unitDir)
		return result, nil
	}

	if unit.Timeout != 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, unit.Timeout)
		defer cancel()
	}

	target := r.verb.SubTarget()
	cmd := exec.CommandContext(ctx, r.makeBinary, target, fmt.Sprintf("%s=%s", RuntimeDirVar, r.runtimeDir))
	cmd.Dir = unitDir
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", RuntimeDirVar, r.runtimeDir))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info("Running unit", "unit", unit.Name, "target", target)
	r.log.Debug("Running unit command",
		"dir", cmd.Dir,
		"command", cmd.String(),
		"timeout", unit.Timeout)

	err := cmd.Run()

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.Status = types.UnitStatusFail
		result.TimedOut = true
		result.Error = fmt.Errorf("unit timed out after %v", unit.Timeout)
		return result, nil
	}

	if err != nil {
		result.Status = types.UnitStatusFail
		result.Error = unitInvocationError(err, stderr.String())
		return result, nil
	}

	result.Status = types.UnitStatusPass
	return result, nil
}

// unitInvocationError folds the sub-invocation's stderr into the error so
// the failure cause survives into the results table and log files.
func unitInvocationError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w\nstderr: %s", err, stderr)
}

// updateStats updates the suite-level statistics with one unit result.
func (r *SuiteResult) updateStats(unit *types.UnitResult) {
	r.Stats.Total++
	switch unit.Status {
	case types.UnitStatusPass:
		r.Stats.Passed++
	case types.UnitStatusFail:
		r.Stats.Failed++
	case types.UnitStatusSkip:
		r.Stats.Skipped++
	}
}

// determineSuiteStatus determines the overall status of a suite run
func determineSuiteStatus(result *SuiteResult) types.UnitStatus {
	if len(result.Units) == 0 {
		return types.UnitStatusSkip
	}

	allSkipped := true
	anyFailed := false
	for _, unit := range result.Units {
		if unit.Status != types.UnitStatusSkip {
			allSkipped = false
		}
		if unit.Status == types.UnitStatusFail {
			anyFailed = true
		}
	}

	if allSkipped {
		return types.UnitStatusSkip
	}
	if anyFailed {
		return types.UnitStatusFail
	}
	return types.UnitStatusPass
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the suite results
func (r *SuiteResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Suite Run Results, verb=%s (%s):\n", r.Verb, formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped))

	for i, unit := range r.Units {
		prefix := "├──"
		if i == len(r.Units)-1 && len(r.NotAttempted) == 0 {
			prefix = "└──"
		}
		b.WriteString(fmt.Sprintf("%s Unit: %s (%s) [status=%s]\n",
			prefix, unit.Metadata.Name, formatDuration(unit.Duration), unit.Status))
		if unit.Error != nil {
			b.WriteString(fmt.Sprintf("│       └── Error: %s\n", firstLine(unit.Error.Error())))
		}
	}

	if len(r.NotAttempted) > 0 {
		b.WriteString(fmt.Sprintf("└── Not attempted (fail-fast after %s): %s\n",
			r.FirstFailure, strings.Join(r.NotAttempted, ", ")))
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	return s
}

// SetFileLogger sets the file logger for the runner
func (r *runner) SetFileLogger(logger *logging.FileLogger) {
	r.fileLogger = logger
}

// Make sure the runner type implements both interfaces
var _ SuiteRunner = &runner{}
var _ SuiteRunnerWithFileLogger = &runner{}
