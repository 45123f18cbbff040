package runner

import "github.com/xqts-suite/runnercore/types"

// Manager is the orchestrator boundary the runner emits progress and
// verdicts to (spec §1 "Manager", out of the runner's own scope). One
// Runner may serve many Managers; ManagerRef is opaque to the runner
// and passed back unchanged so a Manager implementation can multiplex
// on it.
type Manager interface {
	// RunningTestCase notifies that id has begun executing, emitted
	// synchronously just before the query is compiled (spec §4.2 step 4).
	RunningTestCase(ref types.ManagerRef, id types.TestCaseId)

	// RanTestCase delivers the final verdict for id.
	RanTestCase(ref types.ManagerRef, result types.TestResult)
}
