package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/perfsuite/bench-driver/types"
)

const (
	MetricsNamespace = "benchdriver"
)

var (
	Debug                bool = true
	validResults              = []types.UnitStatus{types.UnitStatusPass, types.UnitStatusFail, types.UnitStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	unitRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "unit_runs_total",
		Help:      "Count of unit sub-invocations",
	}, []string{
		"suite_name",
		"run_id",
		"unit",
		"verb",
		"result",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of suite runs",
	}, []string{
		"suite_name",
		"run_id",
		"verb",
		"result",
	})

	suiteUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_units_total",
		Help:      "Total number of units attempted per suite run",
	}, []string{
		"suite_name",
		"run_id",
	})

	suiteUnitsPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_units_passed",
		Help:      "Number of passed units per suite run",
	}, []string{
		"suite_name",
		"run_id",
	})

	suiteUnitsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_units_failed",
		Help:      "Number of failed units per suite run",
	}, []string{
		"suite_name",
		"run_id",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration",
		Help:      "Duration of suite runs in seconds",
	}, []string{
		"suite_name",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordUnitRun(suiteName string, runID string, unit string, verb types.Verb, result types.UnitStatus) {
	if !isValidResult(result) {
		log.Error("RecordUnitRun - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "unit_runs_total",
			"suite", suiteName,
			"run_id", runID,
			"unit", unit,
			"verb", verb,
			"result", result)
	}
	unitRunsTotal.WithLabelValues(suiteName, runID, unit, verb.String(), string(result)).Inc()
}

func RecordSuite(
	suiteName string,
	runID string,
	verb types.Verb,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(suiteName, runID, verb.String(), result).Set(1)
	suiteUnitsTotal.WithLabelValues(suiteName, runID).Add(float64(total))
	suiteUnitsPassed.WithLabelValues(suiteName, runID).Add(float64(passed))
	suiteUnitsFailed.WithLabelValues(suiteName, runID).Add(float64(failed))
	suiteDuration.WithLabelValues(suiteName, runID).Set(duration.Seconds())
}

func isValidResult(result types.UnitStatus) bool {
	return slices.Contains(validResults, result)
}
