package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingsAddSentinel(t *testing.T) {
	sum := NoTimings.Add(Timings{CompilationTime: 5 * time.Millisecond, ExecutionTime: 2 * time.Millisecond})
	assert.Equal(t, 5*time.Millisecond, sum.CompilationTime)
	assert.Equal(t, 2*time.Millisecond, sum.ExecutionTime)
}

func TestTimingsAddAccumulates(t *testing.T) {
	a := Timings{CompilationTime: 3 * time.Millisecond, ExecutionTime: 1 * time.Millisecond}
	b := Timings{CompilationTime: 4 * time.Millisecond, ExecutionTime: 1 * time.Millisecond}
	sum := a.Add(b)
	assert.Equal(t, 7*time.Millisecond, sum.CompilationTime)
	assert.Equal(t, 2*time.Millisecond, sum.ExecutionTime)
}

func TestResultConstructors(t *testing.T) {
	id := TestCaseId{TestSet: "set1", TestCase: "case1"}

	p := Pass(id, Timings{})
	require.Equal(t, VerdictPass, p.Kind)
	assert.Equal(t, id, p.ID())

	f := Failure(id, "wrong count", Timings{})
	assert.Equal(t, VerdictFailure, f.Kind)
	assert.Equal(t, "wrong count", f.Reason)
	assert.Contains(t, f.String(), "wrong count")

	e := ErrorResult(id, errors.New("boom"), NoTimings)
	assert.Equal(t, VerdictError, e.Kind)
	assert.Contains(t, e.String(), "boom")
}

func TestTestCaseIdString(t *testing.T) {
	id := TestCaseId{TestSet: "fn-abs", TestCase: "fn-abs-1"}
	assert.Equal(t, "fn-abs#fn-abs-1", id.String())
}
