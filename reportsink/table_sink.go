package reportsink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xqts-suite/runnercore/types"
)

// TableSink renders a running table of verdicts, grounded on the
// teacher's TreeTableFormatter (reporting/tree_formatters.go)'s use of
// github.com/jedib0t/go-pretty/v6/table.
type TableSink struct {
	out io.Writer

	mu      sync.Mutex
	results map[string][]types.TestResult
}

// NewTableSink builds a TableSink writing to out.
func NewTableSink(out io.Writer) *TableSink {
	return &TableSink{out: out, results: make(map[string][]types.TestResult)}
}

func (s *TableSink) Consume(runID string, result types.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[runID] = append(s.results[runID], result)
	return nil
}

func (s *TableSink) Complete(runID string) error {
	s.mu.Lock()
	rows := s.results[runID]
	delete(s.results, runID)
	s.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.AppendHeader(table.Row{"Test Set", "Test Case", "Verdict", "Compile", "Execute", "Detail"})

	for _, r := range rows {
		verdict := statusText(r.Kind)
		t.AppendRow(table.Row{
			string(r.TestSet), string(r.TestCase), verdict,
			formatDuration(r.Timings.CompilationTime), formatDuration(r.Timings.ExecutionTime),
			r.String(),
		})
	}

	switch {
	case anyFailedOrErrored(rows):
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Style().Format.Header = text.FormatUpper
	t.Render()
	return nil
}

func statusText(kind types.VerdictKind) string {
	switch kind {
	case types.VerdictPass:
		return "PASS"
	case types.VerdictFailure:
		return "FAIL"
	case types.VerdictAssumptionFailed:
		return "ASSUMPTION-FAILED"
	default:
		return "ERROR"
	}
}

func anyFailedOrErrored(rows []types.TestResult) bool {
	for _, r := range rows {
		if r.Kind == types.VerdictFailure || r.Kind == types.VerdictError {
			return true
		}
	}
	return false
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
