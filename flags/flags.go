package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "BENCH_DRIVER"

var (
	RuntimeDir = &cli.StringFlag{
		Name:     "runtime-dir",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "RUNTIME_DIR"),
		Usage:    "Path to the runtime directory propagated to every unit's build (relative paths are normalized to absolute once per invocation)",
	}
	SuiteDir = &cli.StringFlag{
		Name:    "suite-dir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_DIR"),
		Usage:   "Directory containing the unit subdirectories",
	}
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Path to a suite manifest file (eg. 'suite.yaml') overriding the built-in unit set",
	}
	Units = &cli.StringSliceFlag{
		Name:    "unit",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UNIT"),
		Usage:   "Restrict the run to the named unit(s); may be repeated. Declaration order is preserved.",
	}
	Discover = &cli.BoolFlag{
		Name:    "discover",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DISCOVER"),
		Usage:   "Discover units by scanning the suite directory for subdirectories with a Makefile",
	}
	MakeBinary = &cli.StringFlag{
		Name:    "make-binary",
		Value:   "make",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAKE_BINARY"),
		Usage:   "Path to the make binary used for unit sub-invocations",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ContinueOnError = &cli.BoolFlag{
		Name:    "continue-on-error",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONTINUE_ON_ERROR"),
		Usage:   "Attempt the remaining units after a unit fails, instead of the default fail-fast",
	}
	AllowMissing = &cli.BoolFlag{
		Name:    "allow-missing",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALLOW_MISSING"),
		Usage:   "Skip units whose directory is missing instead of failing",
	}
	UnitTimeout = &cli.DurationFlag{
		Name:    "unit-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UNIT_TIMEOUT"),
		Usage:   "Default timeout for a single unit sub-invocation; 0 disables the timeout. Per-unit manifest timeouts override this.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store unit output logs",
	}
	SuiteName = &cli.StringFlag{
		Name:    "suite-name",
		Value:   "default",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_NAME"),
		Usage:   "Suite name reported in metrics",
	}
)

var requiredFlags = []cli.Flag{
	RuntimeDir,
}

var optionalFlags = []cli.Flag{
	SuiteDir,
	Manifest,
	Units,
	Discover,
	MakeBinary,
	RunInterval,
	ContinueOnError,
	AllowMissing,
	UnitTimeout,
	LogDir,
	SuiteName,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
