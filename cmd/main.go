package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	driver "github.com/perfsuite/bench-driver"
	"github.com/perfsuite/bench-driver/exitcodes"
	"github.com/perfsuite/bench-driver/flags"
	"github.com/perfsuite/bench-driver/service"
	"github.com/perfsuite/bench-driver/types"
)

var (
	Version   = "v0.2.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "bench-driver"
	app.Usage = "Runtime Benchmark Suite Driver"
	app.Description = "bench-driver builds, runs and cleans the benchmark suite, one unit at a time"
	app.ArgsUsage = "[run|build|clean]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if driver.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if driver.IsSuiteFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.SuiteFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	// Start server
	ctx := context.Background()
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	verb, err := verbFromArgs(ctx.Args().Slice())
	if err != nil {
		// Usage errors abort before any unit is attempted
		return nil, driver.NewRuntimeError(err)
	}

	cfg, err := driver.NewConfig(ctx, log, verb)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, driver.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	// Create the driver service
	driverService, err := driver.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, driver.NewRuntimeError(fmt.Errorf("failed to create driver: %w", err))
	}

	return driverService, nil
}

// verbFromArgs maps the positional argument to an aggregate verb.
// No argument means the default verb, run.
func verbFromArgs(args []string) (types.Verb, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one verb, got %q", strings.Join(args, " "))
	}
	if len(args) == 0 {
		return types.VerbRun, nil
	}
	return types.ParseVerb(args[0])
}
