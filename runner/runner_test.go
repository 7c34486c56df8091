package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfsuite/bench-driver/types"
)

// suiteHarness is a temporary suite tree plus an instrumented stub build
// tool that records every sub-invocation it receives.
type suiteHarness struct {
	suiteDir   string
	runtimeDir string
	makeBin    string
	invokeLog  string
}

// stubInvocation is one recorded sub-invocation of the stub build tool.
type stubInvocation struct {
	unit       string
	target     string
	runtimeArg string // the RUNTIME_DIR= command line override
	runtimeEnv string // the RUNTIME_DIR environment variable
}

// newSuiteHarness creates unit subdirectories and a stub build tool. The
// stub appends a start line and an end line around a short sleep, so tests
// can verify both the exact invocation arguments and that no two
// sub-invocations ever overlapped. A unit whose directory contains a file
// named "fail" exits nonzero.
func newSuiteHarness(t *testing.T, unitNames ...string) *suiteHarness {
	t.Helper()

	base := t.TempDir()
	suiteDir := filepath.Join(base, "suite")
	runtimeDir := filepath.Join(base, "runtime")
	require.NoError(t, os.MkdirAll(runtimeDir, 0o755))

	for _, name := range unitNames {
		require.NoError(t, os.MkdirAll(filepath.Join(suiteDir, name), 0o755))
	}

	invokeLog := filepath.Join(base, "invocations.log")
	makeBin := filepath.Join(base, "fake-make")
	script := fmt.Sprintf(`#!/bin/sh
unit=$(basename "$PWD")
echo "start $unit $1 $2 env=$RUNTIME_DIR" >> %q
sleep 0.02
echo "end $unit" >> %q
if [ -f fail ]; then
  echo "simulated build failure" >&2
  exit 2
fi
exit 0
`, invokeLog, invokeLog)
	require.NoError(t, os.WriteFile(makeBin, []byte(script), 0o755))

	return &suiteHarness{
		suiteDir:   suiteDir,
		runtimeDir: runtimeDir,
		makeBin:    makeBin,
		invokeLog:  invokeLog,
	}
}

func (h *suiteHarness) units(names ...string) []types.UnitMetadata {
	units := make([]types.UnitMetadata, 0, len(names))
	for _, name := range names {
		units = append(units, types.UnitMetadata{Name: name})
	}
	return units
}

func (h *suiteHarness) config(units []types.UnitMetadata, verb types.Verb) Config {
	return Config{
		Units:      units,
		SuiteDir:   h.suiteDir,
		RuntimeDir: h.runtimeDir,
		Verb:       verb,
		MakeBinary: h.makeBin,
		Log:        log.New(),
	}
}

func (h *suiteHarness) markFailing(t *testing.T, unit string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.suiteDir, unit, "fail"), nil, 0o644))
}

// logLines returns the raw start/end lines recorded by the stub.
func (h *suiteHarness) logLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(h.invokeLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// invocations parses the recorded start lines in order.
func (h *suiteHarness) invocations(t *testing.T) []stubInvocation {
	t.Helper()
	var invs []stubInvocation
	for _, line := range h.logLines(t) {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "start" {
			continue
		}
		require.Len(t, fields, 5, "unexpected stub log line: %q", line)
		invs = append(invs, stubInvocation{
			unit:       fields[1],
			target:     fields[2],
			runtimeArg: fields[3],
			runtimeEnv: strings.TrimPrefix(fields[4], "env="),
		})
	}
	return invs
}

func TestRunSuite_OneInvocationPerUnitInOrder(t *testing.T) {
	names := []string{"event_latency", "event_throughput", "lock_chains"}
	h := newSuiteHarness(t, names...)

	r, err := NewSuiteRunner(h.config(h.units(names...), types.VerbRun))
	require.NoError(t, err)

	result, err := r.RunSuite(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatusPass, result.Status)
	assert.Equal(t, 3, result.Stats.Total)
	assert.Equal(t, 3, result.Stats.Passed)
	assert.Empty(t, result.NotAttempted)
	assert.NotEmpty(t, result.RunID)

	invs := h.invocations(t)
	require.Len(t, invs, 3, "exactly one sub-invocation per unit")
	for i, name := range names {
		assert.Equal(t, name, invs[i].unit, "declaration order must be preserved")
		assert.Equal(t, "run", invs[i].target)
	}
}

func TestRunSuite_RuntimeDirPropagation(t *testing.T) {
	names := []string{"reducetest", "task_throughput"}
	h := newSuiteHarness(t, names...)

	r, err := NewSuiteRunner(h.config(h.units(names...), types.VerbBuild))
	require.NoError(t, err)

	_, err = r.RunSuite(context.Background())
	require.NoError(t, err)

	invs := h.invocations(t)
	require.Len(t, invs, 2)

	expected := RuntimeDirVar + "=" + h.runtimeDir
	for _, inv := range invs {
		// Every unit observes the identical absolute path, via both the
		// command-line override and the environment.
		assert.Equal(t, expected, inv.runtimeArg)
		assert.Equal(t, h.runtimeDir, inv.runtimeEnv)
		assert.True(t, filepath.IsAbs(inv.runtimeEnv))
	}
}

func TestRunSuite_VerbTargetMapping(t *testing.T) {
	tests := []struct {
		verb   types.Verb
		target string
	}{
		{types.VerbRun, "run"},
		{types.VerbBuild, "all"},
		{types.VerbClean, "clean"},
	}

	for _, tt := range tests {
		t.Run(tt.verb.String(), func(t *testing.T) {
			h := newSuiteHarness(t, "lock_contention")

			r, err := NewSuiteRunner(h.config(h.units("lock_contention"), tt.verb))
			require.NoError(t, err)

			result, err := r.RunSuite(context.Background())
			require.NoError(t, err)
			require.Equal(t, types.UnitStatusPass, result.Status)

			invs := h.invocations(t)
			require.Len(t, invs, 1)
			assert.Equal(t, tt.target, invs[0].target)
			assert.Equal(t, tt.verb, result.Units[0].Verb)
		})
	}
}

func TestRunSuite_Sequentiality(t *testing.T) {
	names := []string{"event_latency", "event_throughput", "lock_chains"}
	h := newSuiteHarness(t, names...)

	r, err := NewSuiteRunner(h.config(h.units(names...), types.VerbRun))
	require.NoError(t, err)

	result, err := r.RunSuite(context.Background())
	require.NoError(t, err)

	// The stub writes "start X" and "end X" around each invocation; with
	// strictly sequential execution the log must alternate perfectly.
	lines := h.logLines(t)
	require.Len(t, lines, 6)
	for i, name := range names {
		assert.Equal(t, "start "+name, strings.Join(strings.Fields(lines[2*i])[:2], " "))
		assert.Equal(t, "end "+name, lines[2*i+1])
	}

	// The runner's own interval bookkeeping must agree: no overlap.
	for i := 1; i < len(result.Units); i++ {
		prev, cur := result.Units[i-1], result.Units[i]
		assert.False(t, cur.StartTime.Before(prev.EndTime),
			"unit %s started before unit %s completed", cur.Metadata.Name, prev.Metadata.Name)
	}
}

func TestRunSuite_FailFast(t *testing.T) {
	names := []string{"event_latency", "lock_chains", "reducetest", "task_throughput"}
	h := newSuiteHarness(t, names...)
	h.markFailing(t, "lock_chains")

	r, err := NewSuiteRunner(h.config(h.units(names...), types.VerbRun))
	require.NoError(t, err)

	result, err := r.RunSuite(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatusFail, result.Status)
	assert.Equal(t, "lock_chains", result.FirstFailure)
	require.Len(t, result.Units, 2, "no unit after the failure may be attempted")
	assert.Equal(t, []string{"reducetest", "task_throughput"}, result.NotAttempted)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 1, result.Stats.Passed)

	invs := h.invocations(t)
	require.Len(t, invs, 2)
	assert.Equal(t, "event_latency", invs[0].unit)
	assert.Equal(t, "lock_chains", invs[1].unit)

	failed := result.Units[1]
	assert.Equal(t, types.UnitStatusFail, failed.Status)
	assert.Equal(t, 2, failed.ExitCode)
	require.Error(t, failed.Error)
	assert.Contains(t, failed.Error.Error(), "simulated build failure")
}

func TestRunSuite_ContinueOnError(t *testing.T) {
	names := []string{"event_latency", "lock_chains", "reducetest"}
	h := newSuiteHarness(t, names...)
	h.markFailing(t, "lock_chains")

	cfg := h.config(h.units(names...), types.VerbRun)
	cfg.ContinueOnError = true
	r, err := NewSuiteRunner(cfg)
	require.NoError(t, err)

	result, err := r.RunSuite(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatusFail, result.Status)
	assert.Equal(t, "lock_chains", result.FirstFailure)
	assert.Len(t, result.Units, 3, "continue-on-error attempts every unit")
	assert.Empty(t, result.NotAttempted)
	assert.Equal(t, 2, result.Stats.Passed)
	assert.Equal(t, 1, result.Stats.Failed)
}

func TestRunSuite_ContextCanceled(t *testing.T) {
	h := newSuiteHarness(t, "event_latency", "lock_chains")

	r, err := NewSuiteRunner(h.config(h.units("event_latency", "lock_chains"), types.VerbRun))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.RunSuite(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suite aborted")
	assert.Empty(t, h.invocations(t), "no sub-invocation may start after cancellation")
}

func TestRunUnit_MissingDirectory(t *testing.T) {
	h := newSuiteHarness(t, "event_latency")
	units := h.units("event_latency", "ghost_unit")

	t.Run("failure by default", func(t *testing.T) {
		r, err := NewSuiteRunner(h.config(units, types.VerbRun))
		require.NoError(t, err)

		result, err := r.RunSuite(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.UnitStatusFail, result.Status)
		assert.Equal(t, "ghost_unit", result.FirstFailure)
		require.Error(t, result.Units[1].Error)
		assert.Contains(t, result.Units[1].Error.Error(), "does not exist")
	})

	t.Run("skip with allow-missing", func(t *testing.T) {
		cfg := h.config(units, types.VerbRun)
		cfg.AllowMissing = true
		r, err := NewSuiteRunner(cfg)
		require.NoError(t, err)

		result, err := r.RunSuite(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.UnitStatusPass, result.Status)
		assert.Equal(t, types.UnitStatusSkip, result.Units[1].Status)
		assert.Equal(t, 1, result.Stats.Skipped)
	})
}

func TestRunUnit_Timeout(t *testing.T) {
	h := newSuiteHarness(t, "slow_unit")

	// Replace the stub with one that outlives the unit timeout.
	script := "#!/bin/sh\nsleep 5\n"
	require.NoError(t, os.WriteFile(h.makeBin, []byte(script), 0o755))

	units := []types.UnitMetadata{{Name: "slow_unit", Timeout: 100 * time.Millisecond}}
	r, err := NewSuiteRunner(h.config(units, types.VerbRun))
	require.NoError(t, err)

	start := time.Now()
	result, err := r.RunSuite(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 3*time.Second, "timeout must cut the sub-invocation short")

	unit := result.Units[0]
	assert.Equal(t, types.UnitStatusFail, unit.Status)
	assert.True(t, unit.TimedOut)
	require.Error(t, unit.Error)
	assert.Contains(t, unit.Error.Error(), "timed out")
}

func TestNewSuiteRunner_Validation(t *testing.T) {
	h := newSuiteHarness(t, "event_latency")
	valid := h.config(h.units("event_latency"), types.VerbRun)

	t.Run("no units", func(t *testing.T) {
		cfg := valid
		cfg.Units = nil
		_, err := NewSuiteRunner(cfg)
		require.Error(t, err)
	})

	t.Run("relative runtime dir rejected", func(t *testing.T) {
		cfg := valid
		cfg.RuntimeDir = "relative/runtime"
		_, err := NewSuiteRunner(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be absolute")
	})

	t.Run("invalid verb", func(t *testing.T) {
		cfg := valid
		cfg.Verb = types.Verb("install")
		_, err := NewSuiteRunner(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid verb")
	})
}

func TestSuiteResult_String(t *testing.T) {
	result := &SuiteResult{
		Verb: types.VerbRun,
		Units: []*types.UnitResult{
			{Metadata: types.UnitMetadata{Name: "event_latency"}, Status: types.UnitStatusPass, Duration: time.Second},
			{Metadata: types.UnitMetadata{Name: "lock_chains"}, Status: types.UnitStatusFail, Error: fmt.Errorf("exit status 2"), Duration: 2 * time.Second},
		},
		Stats:        ResultStats{Total: 2, Passed: 1, Failed: 1},
		FirstFailure: "lock_chains",
		NotAttempted: []string{"reducetest"},
	}

	s := result.String()
	assert.Contains(t, s, "Total: 2, Passed: 1, Failed: 1")
	assert.Contains(t, s, "Unit: event_latency")
	assert.Contains(t, s, "Error: exit status 2")
	assert.Contains(t, s, "Not attempted (fail-fast after lock_chains): reducetest")
}
