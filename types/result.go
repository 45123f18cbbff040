package types

import (
	"time"

	"github.com/google/uuid"
)

// VerdictKind is the four-way tag of TestResult (spec §3).
type VerdictKind string

const (
	VerdictPass             VerdictKind = "pass"
	VerdictFailure          VerdictKind = "failure"
	VerdictError            VerdictKind = "error"
	VerdictAssumptionFailed VerdictKind = "assumption-failed"
)

// NoEngineCall is the sentinel timing value reported when a verdict
// was produced before any engine invocation occurred (spec §3, §7).
const NoEngineCall time.Duration = -1

// Timings accumulate compilation/execution time across every engine
// invocation performed for a test case, including helper queries run
// during assertion checking (spec §3).
type Timings struct {
	CompilationTime time.Duration
	ExecutionTime   time.Duration
}

// Add returns the pointwise sum of two Timings, treating NoEngineCall
// as if no time had been spent (so a partial sum after a failure never
// silently becomes negative once a real call follows it).
func (t Timings) Add(o Timings) Timings {
	out := t
	if o.CompilationTime > 0 {
		if out.CompilationTime < 0 {
			out.CompilationTime = 0
		}
		out.CompilationTime += o.CompilationTime
	}
	if o.ExecutionTime > 0 {
		if out.ExecutionTime < 0 {
			out.ExecutionTime = 0
		}
		out.ExecutionTime += o.ExecutionTime
	}
	return out
}

// NoTimings is the (-1, -1) pair reported when a verdict was reached
// before any engine call (spec §3, §7 category 1).
var NoTimings = Timings{CompilationTime: NoEngineCall, ExecutionTime: NoEngineCall}

// TestResult is the tagged-union verdict every RanTestCase carries
// (spec §3). Exactly one of Reason/Cause is meaningful, depending on
// Kind: Failure and AssumptionFailed carry Reason, Error carries Cause,
// Pass carries neither.
type TestResult struct {
	TestSet  TestSetName
	TestCase TestCaseName
	Kind     VerdictKind
	Timings  Timings

	// RunID identifies the Runner instance that produced this verdict
	// (spec §3), stamped by the dispatcher after execute/emitError
	// build the result. Zero value for results constructed outside a
	// live Runner (e.g. in tests).
	RunID uuid.UUID

	Reason string // meaningful iff Kind == VerdictFailure or VerdictAssumptionFailed
	Cause  error  // meaningful iff Kind == VerdictError
}

// Pass constructs a passing verdict.
func Pass(id TestCaseId, t Timings) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Kind: VerdictPass, Timings: t}
}

// Failure constructs a failing verdict with a human-readable reason.
func Failure(id TestCaseId, reason string, t Timings) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Kind: VerdictFailure, Reason: reason, Timings: t}
}

// ErrorResult constructs an error verdict carrying the underlying cause.
func ErrorResult(id TestCaseId, cause error, t Timings) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Kind: VerdictError, Cause: cause, Timings: t}
}

// AssumptionFailed constructs the fourth variant. Per spec §3 this is
// produced only by stages upstream of the assertion evaluator; the
// evaluator observing it is a programming error (see the runner
// package's assertion evaluator, evaluateNode).
func AssumptionFailed(id TestCaseId, reason string, t Timings) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Kind: VerdictAssumptionFailed, Reason: reason, Timings: t}
}

// ID reconstructs the TestCaseId a TestResult was produced for.
func (r TestResult) ID() TestCaseId {
	return TestCaseId{TestSet: r.TestSet, TestCase: r.TestCase}
}

func (r TestResult) String() string {
	switch r.Kind {
	case VerdictFailure, VerdictAssumptionFailed:
		return string(r.Kind) + ": " + r.Reason
	case VerdictError:
		if r.Cause != nil {
			return string(r.Kind) + ": " + r.Cause.Error()
		}
		return string(r.Kind)
	default:
		return string(r.Kind)
	}
}
