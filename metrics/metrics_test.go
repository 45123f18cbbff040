package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xqts-suite/runnercore/types"
)

// TestNilMetricsIsSafe exercises every recorder against a Scoped built
// from a nil *Metrics, since New() registers process-global collectors
// and must only ever be called once per test binary.
func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	s := m.ForRun("run-1")
	assert.NotPanics(t, func() {
		s.RecordVerdict(types.VerdictPass)
		s.RecordResourceFetch(10 * time.Millisecond)
		s.RecordTimings(types.Timings{CompilationTime: 5 * time.Millisecond, ExecutionTime: 3 * time.Millisecond})
		s.RecordHelperQuery()
	})
}

// TestNilScopedIsSafe exercises a nil *Scoped directly, the shape a
// Runner built over a nil *metrics.Metrics actually holds.
func TestNilScopedIsSafe(t *testing.T) {
	var s *Scoped
	assert.NotPanics(t, func() {
		s.RecordVerdict(types.VerdictPass)
		s.RecordResourceFetch(time.Millisecond)
		s.RecordTimings(types.NoTimings)
		s.RecordHelperQuery()
	})
}

// sharedMetrics makes the single New() registration this test binary
// performs; every test that needs a real *Metrics records through it.
var sharedMetrics = sync.OnceValue(New)

func TestNewRegistersAndRecordsWithoutPanicking(t *testing.T) {
	m := sharedMetrics()
	s := m.ForRun("run-1")
	assert.NotPanics(t, func() {
		s.RecordVerdict(types.VerdictFailure)
		s.RecordResourceFetch(time.Second)
		s.RecordTimings(types.NoTimings)
		s.RecordTimings(types.Timings{CompilationTime: time.Millisecond, ExecutionTime: time.Millisecond})
		s.RecordHelperQuery()
	})
}

func TestForRunProducesIndependentLabelSets(t *testing.T) {
	m := sharedMetrics()
	a := m.ForRun("run-a")
	b := m.ForRun("run-b")
	assert.NotPanics(t, func() {
		a.RecordVerdict(types.VerdictPass)
		b.RecordVerdict(types.VerdictError)
	})
}
