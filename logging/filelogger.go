// Package logging persists unit sub-invocation output to per-run log files.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/perfsuite/bench-driver/types"
)

const (
	RunDirectoryPrefix = "suiterun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
)

// ResultSink is an interface for different ways of consuming unit results
type ResultSink interface {
	// Consume processes a single unit result
	Consume(result *types.UnitResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing unit output to files
type FileLogger struct {
	baseDir     string // Base directory for logs
	logDir      string // Directory for this run
	failedDir   string // Directory for failed units
	passedDir   string // Directory for passed units
	summaryFile string // Path to the summary file
	mu          sync.Mutex
	sinks       []ResultSink
	runID       string
}

// NewFileLogger creates a new FileLogger rooted at baseDir for the given run.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, "failed")
	passedDir := filepath.Join(logDir, "passed")

	for _, dir := range []string{baseDir, logDir, failedDir, passedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:     baseDir,
		logDir:      logDir,
		failedDir:   failedDir,
		passedDir:   passedDir,
		summaryFile: filepath.Join(logDir, SummaryFilename),
		runID:       runID,
	}
	logger.sinks = []ResultSink{
		&PerUnitFileSink{logger: logger},
	}

	return logger, nil
}

// LogUnitResult passes a unit result to every sink.
func (l *FileLogger) LogUnitResult(result *types.UnitResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Consume(result, l.runID); err != nil {
			return err
		}
	}
	return nil
}

// LogSummary writes the human-readable run summary for this run.
func (l *FileLogger) LogSummary(summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return os.WriteFile(l.summaryFile, []byte(stripansi.Strip(summary)), 0644)
}

// Complete finalizes all sinks for the run.
func (l *FileLogger) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Complete(l.runID); err != nil {
			return err
		}
	}
	return nil
}

// GetRunID returns the run ID this logger was created for.
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetBaseDir returns the base log directory.
func (l *FileLogger) GetBaseDir() string {
	return l.baseDir
}

// GetDirectory returns the log directory for this run.
func (l *FileLogger) GetDirectory() string {
	return l.logDir
}

// GetFailedDir returns the directory holding failed unit logs.
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetSummaryFile returns the path of the summary file.
func (l *FileLogger) GetSummaryFile() string {
	return l.summaryFile
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeFilename replaces characters that are awkward in filenames.
func safeFilename(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// unitLogFilename returns the log filename for one unit result,
// e.g. "lock_chains-run.log".
func unitLogFilename(result *types.UnitResult) string {
	return fmt.Sprintf("%s-%s.log", safeFilename(result.Metadata.Name), safeFilename(result.Verb.SubTarget()))
}

// PerUnitFileSink writes one log file per unit, split into passed/ and
// failed/ directories by outcome.
type PerUnitFileSink struct {
	logger *FileLogger
}

// Consume implements the ResultSink interface
func (s *PerUnitFileSink) Consume(result *types.UnitResult, runID string) error {
	dir := s.logger.passedDir
	if result.Status == types.UnitStatusFail {
		dir = s.logger.failedDir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "unit: %s\n", result.Metadata.Name)
	fmt.Fprintf(&b, "verb: %s (sub-target %s)\n", result.Verb, result.Verb.SubTarget())
	fmt.Fprintf(&b, "status: %s\n", result.Status)
	fmt.Fprintf(&b, "duration: %s\n", result.Duration)
	fmt.Fprintf(&b, "exit code: %d\n", result.ExitCode)
	if result.TimedOut {
		fmt.Fprintf(&b, "timed out: true\n")
	}
	if result.Error != nil {
		fmt.Fprintf(&b, "error: %s\n", result.Error.Error())
	}
	if result.Stdout != "" {
		fmt.Fprintf(&b, "\n--- stdout ---\n%s", ensureTrailingNewline(stripansi.Strip(result.Stdout)))
	}
	if result.Stderr != "" {
		fmt.Fprintf(&b, "\n--- stderr ---\n%s", ensureTrailingNewline(stripansi.Strip(result.Stderr)))
	}

	path := filepath.Join(dir, unitLogFilename(result))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write unit log %s: %w", path, err)
	}
	return nil
}

// Complete implements the ResultSink interface
func (s *PerUnitFileSink) Complete(runID string) error {
	return nil
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
