package reportsink

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/xqts-suite/runnercore/types"
)

// JSONSink writes one newline-delimited JSON object per verdict as it
// arrives, for machine consumption (spec §4.11).
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink builds a JSONSink writing to out.
func NewJSONSink(out io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(out)}
}

type jsonRecord struct {
	RunID    string             `json:"runId"`
	TestSet  types.TestSetName  `json:"testSet"`
	TestCase types.TestCaseName `json:"testCase"`
	Verdict  types.VerdictKind  `json:"verdict"`
	Reason   string             `json:"reason,omitempty"`
	Error    string             `json:"error,omitempty"`
	Compile  int64              `json:"compilationTimeMs"`
	Execute  int64              `json:"executionTimeMs"`
}

func (s *JSONSink) Consume(runID string, result types.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := jsonRecord{
		RunID:    runID,
		TestSet:  result.TestSet,
		TestCase: result.TestCase,
		Verdict:  result.Kind,
		Reason:   result.Reason,
		Compile:  result.Timings.CompilationTime.Milliseconds(),
		Execute:  result.Timings.ExecutionTime.Milliseconds(),
	}
	if result.Cause != nil {
		rec.Error = result.Cause.Error()
	}
	return s.enc.Encode(rec)
}

// Complete is a no-op: every record is already flushed on Consume.
func (s *JSONSink) Complete(runID string) error { return nil }
