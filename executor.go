package driver

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/perfsuite/bench-driver/runner"
)

// SuiteExecutor is responsible for running the benchmark suite.
type SuiteExecutor interface {
	RunSuite(ctx context.Context) (*runner.SuiteResult, error)
}

// DefaultSuiteExecutor implements the SuiteExecutor interface.
type DefaultSuiteExecutor struct {
	runner runner.SuiteRunner
	logger log.Logger
}

// NewDefaultSuiteExecutor creates a new DefaultSuiteExecutor.
func NewDefaultSuiteExecutor(runner runner.SuiteRunner, logger log.Logger) *DefaultSuiteExecutor {
	return &DefaultSuiteExecutor{
		runner: runner,
		logger: logger,
	}
}

// RunSuite runs every selected unit and returns the results.
func (e *DefaultSuiteExecutor) RunSuite(ctx context.Context) (*runner.SuiteResult, error) {
	e.logger.Info("Running all units...")
	result, err := e.runner.RunSuite(ctx)
	if err != nil {
		e.logger.Error("Error running suite", "error", err)
		return nil, err
	}
	e.logger.Info("Suite run completed", "run_id", result.RunID, "status", result.Status)
	return result, nil
}
