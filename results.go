package driver

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/perfsuite/bench-driver/runner"
	"github.com/perfsuite/bench-driver/types"
)

// printResultsTable prints the results of a suite run to the console.
func printResultsTable(result *runner.SuiteResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Benchmark Suite Results, verb=%s (%s)", result.Verb, formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Unit", "Target", "Duration", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Unit", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, unit := range result.Units {
		t.AppendRow(table.Row{
			unit.Metadata.Name,
			unit.Verb.SubTarget(),
			formatDuration(unit.Duration),
			getResultString(unit.Status),
			extractKeyErrorMessage(unit.Error),
		})
	}

	// Units never started under the fail-fast policy still get a row, so
	// the table accounts for the whole declared set.
	for _, name := range result.NotAttempted {
		t.AppendRow(table.Row{
			name,
			result.Verb.SubTarget(),
			"-",
			"not attempted",
			"",
		})
	}

	switch result.Status {
	case types.UnitStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.UnitStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		getResultString(result.Status),
		fmt.Sprintf("%d passed, %d failed, %d skipped", result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped),
	})

	t.Render()
}

// extractKeyErrorMessage extracts the most pertinent part of the error message for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// A make failure reports the failing target on its stderr; prefer that
	// line over the bare exit status.
	for _, line := range strings.Split(errStr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "stderr: ") {
			line = strings.TrimPrefix(line, "stderr: ")
		}
		if strings.Contains(line, "***") || strings.Contains(line, "Error") {
			return truncateString(line, 80)
		}
	}

	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return truncateString(errStr[:idx], 80)
	}
	return truncateString(errStr, 80)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-10] + "..."
}

// getResultString returns a string representing the unit result
func getResultString(status types.UnitStatus) string {
	switch status {
	case types.UnitStatusPass:
		return "✓ pass"
	case types.UnitStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
