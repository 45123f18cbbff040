// Package reportsink defines where RanTestCase verdicts land once a
// Manager has one, grounded on the teacher's reporting package
// Consume/Complete lifecycle (reporting/text_sink.go).
package reportsink

import "github.com/xqts-suite/runnercore/types"

// Sink consumes verdicts as they arrive and finalizes a run once every
// verdict for it has been reported.
type Sink interface {
	// Consume records one verdict for runID.
	Consume(runID string, result types.TestResult) error
	// Complete flushes/renders everything accumulated for runID.
	Complete(runID string) error
}
