package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/perfsuite/bench-driver/exitcodes"
	"github.com/perfsuite/bench-driver/logging"
	"github.com/perfsuite/bench-driver/registry"
	"github.com/perfsuite/bench-driver/runner"
	"github.com/perfsuite/bench-driver/types"
)

// driver implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &driver{}

// driver is the suite driver: it serially re-invokes the per-unit build tool
// for every unit of the benchmark suite, for one aggregate verb.
type driver struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.SuiteRunner
	scheduler SuiteScheduler
	executor  SuiteExecutor
	reporter  MetricsReporter
	result    *runner.SuiteResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New assembles the suite driver. The failure policy and the verb are both
// fixed here for the lifetime of the invocation.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*driver, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating driver with config",
		"suiteDir", config.SuiteDir,
		"runtimeDir", config.RuntimeDir,
		"verb", config.Verb,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"continueOnError", config.ContinueOnError)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		ManifestFile:   config.Manifest,
		DefaultTimeout: config.UnitTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	if config.Discover {
		units, err := registry.DiscoverUnits(config.SuiteDir, config.UnitTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to discover units: %w", err)
		}
		reg.SetUnits(units)
	}

	units, err := reg.SelectUnits(config.UnitFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to select units: %w", err)
	}

	suiteRunner, err := runner.NewSuiteRunner(runner.Config{
		Units:           units,
		SuiteDir:        config.SuiteDir,
		RuntimeDir:      config.RuntimeDir,
		Verb:            config.Verb,
		MakeBinary:      config.MakeBinary,
		ContinueOnError: config.ContinueOnError,
		AllowMissing:    config.AllowMissing,
		SuiteName:       config.SuiteName,
		Log:             config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create suite runner: %w", err)
	}
	config.Log.Info("driver.New: created registry and suite runner", "units", len(units))

	d := &driver{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           suiteRunner,
		scheduler:        NewDefaultSuiteScheduler(config.RunInterval, config.RunOnce, config.Log),
		executor:         NewDefaultSuiteExecutor(suiteRunner, config.Log),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	return d, nil
}

// Start runs the suite, once or periodically at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (d *driver) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			d.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	d.ctx = ctx
	d.running.Store(true)

	if d.config.RunOnce {
		d.config.Log.Info("Starting bench-driver in run-once mode", "verb", d.config.Verb)
	} else {
		d.config.Log.Info("Starting bench-driver in continuous mode",
			"verb", d.config.Verb, "interval", d.config.RunInterval)
	}

	d.scheduler.RegisterCallback(d.runSuite)
	if err := d.scheduler.Start(ctx); err != nil {
		// Runtime errors (configuration issues, aborted runs) exit with code 2
		d.config.Log.Error("Runtime error running suite", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if d.config.RunOnce {
		d.config.Log.Info("Suite completed, exiting (run-once mode)")

		if d.result != nil && d.result.Status == types.UnitStatusFail {
			d.config.Log.Warn("Run-once suite run completed with failures, returning exit code 1",
				"first_failure", d.result.FirstFailure)
			return NewSuiteFailureError(d.result.String())
		}

		// Only need to call this when we're in run-once mode and the suite passed
		go func() {
			d.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	d.config.Log.Debug("bench-driver started successfully")
	return nil
}

// runSuite runs every selected unit once and processes the results.
func (d *driver) runSuite() error {
	runID := uuid.New().String()

	fileLogger, err := logging.NewFileLogger(d.config.LogDir, runID)
	if err != nil {
		// Unit output still reaches the console without a file logger.
		d.config.Log.Error("Failed to create file logger, continuing without unit logs", "error", err)
	} else if r, ok := d.runner.(runner.SuiteRunnerWithFileLogger); ok {
		r.SetFileLogger(fileLogger)
	}

	result, err := d.executor.RunSuite(d.ctx)
	if err != nil {
		// This is a runtime error (not a unit failure)
		return NewRuntimeError(err)
	}
	d.result = result

	printResultsTable(result)
	fmt.Println(result.String())

	if fileLogger != nil {
		if err := fileLogger.LogSummary(result.String()); err != nil {
			d.config.Log.Error("Failed to write summary log", "error", err)
		}
		if err := fileLogger.Complete(); err != nil {
			d.config.Log.Error("Failed to finalize unit logs", "error", err)
		}
		d.config.Log.Info("Unit logs written", "dir", fileLogger.GetDirectory())
	}

	d.reporter.ReportResults(d.config.SuiteName, result.RunID, result)
	d.config.Log.Info("Suite run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Stop stops the suite driver.
// Stop implements the cliapp.Lifecycle interface.
func (d *driver) Stop(ctx context.Context) error {
	d.config.Log.Info("Stopping bench-driver")

	// Check if we're already stopped
	if !d.running.Load() {
		d.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	d.running.Store(false)
	if err := d.scheduler.Stop(); err != nil {
		return err
	}

	d.config.Log.Info("bench-driver stopped successfully")
	return nil
}

// Stopped returns true if the suite driver is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (d *driver) Stopped() bool {
	return !d.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (d *driver) WaitForShutdown(ctx context.Context) error {
	return d.scheduler.WaitForShutdown(ctx)
}
