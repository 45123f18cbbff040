package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xqts-suite/runnercore/enginebridge/enginetest"
	"github.com/xqts-suite/runnercore/resourcecache"
	"github.com/xqts-suite/runnercore/types"
)

// collectingManager records every RunningTestCase/RanTestCase call it
// receives; results are keyed by test-case id, and the ref is ignored.
type collectingManager struct {
	mu      sync.Mutex
	running []types.TestCaseId
	results map[types.TestCaseId]types.TestResult
	done    chan struct{}
}

func newCollectingManager(want int) *collectingManager {
	return &collectingManager{results: make(map[types.TestCaseId]types.TestResult), done: make(chan struct{}, want)}
}

func (m *collectingManager) RunningTestCase(_ types.ManagerRef, id types.TestCaseId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = append(m.running, id)
}

func (m *collectingManager) RanTestCase(_ types.ManagerRef, result types.TestResult) {
	m.mu.Lock()
	m.results[result.ID()] = result
	m.mu.Unlock()
	m.done <- struct{}{}
}

func (m *collectingManager) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for verdict %d/%d", i+1, n)
		}
	}
}

func (m *collectingManager) result(id types.TestCaseId) (types.TestResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	return r, ok
}

func memoryFetcherOver(files map[string][]byte) resourcecache.Fetcher {
	return func(_ context.Context, path string) ([]byte, error) {
		if b, ok := files[path]; ok {
			return b, nil
		}
		return nil, fmt.Errorf("no such fixture: %s", path)
	}
}

// newTestDispatcher builds a Runner with a nil *metrics.Metrics: every
// recorder method is a documented no-op on a nil receiver, and
// promauto's collectors are process-global singletons that would
// panic on double registration if each test built its own.
func newTestDispatcher(files map[string][]byte, engine *enginetest.FakeEngine) *Runner {
	cache := resourcecache.NewMemory(memoryFetcherOver(files))
	rn := New(cache, engine, nil)
	go rn.Start()
	return rn
}

func TestDispatcherZeroDependencyPassVerdict(t *testing.T) {
	engine := enginetest.New()
	rn := newTestDispatcher(nil, engine)
	defer rn.Stop()

	mgr := newCollectingManager(1)
	run := types.RunTestCase{
		TestSet: "set",
		TestCase: types.TestCase{
			Name:        "case1",
			File:        "case1.xq",
			InlineQuery: "(1 + 2) eq 3",
			Result:      types.AssertTrue{},
		},
		Manager: mgr,
	}
	rn.Submit(run)
	mgr.waitFor(t, 1)

	result, ok := mgr.result(run.ID())
	require.True(t, ok)
	assert.Equal(t, types.VerdictPass, result.Kind)
}

func TestDispatcherWaitsForResourceThenRuns(t *testing.T) {
	engine := enginetest.New()
	files := map[string][]byte{"doc.xml": []byte(`<root/>`)}
	rn := newTestDispatcher(files, engine)
	defer rn.Stop()

	mgr := newCollectingManager(1)
	run := types.RunTestCase{
		TestSet: "set",
		TestCase: types.TestCase{
			Name:        "case-with-source",
			File:        "case2.xq",
			InlineQuery: "1 eq 1",
			Environment: &types.Environment{
				Sources: []types.Source{{File: "doc.xml", Role: types.RoleContext}},
			},
			Result: types.AssertTrue{},
		},
		Manager: mgr,
	}
	rn.Submit(run)
	mgr.waitFor(t, 1)

	result, ok := mgr.result(run.ID())
	require.True(t, ok)
	assert.Equal(t, types.VerdictPass, result.Kind)
}

func TestDispatcherDuplicateSubmissionIsNoop(t *testing.T) {
	engine := enginetest.New()
	files := map[string][]byte{"doc.xml": []byte(`<root/>`)}
	rn := newTestDispatcher(files, engine)
	defer rn.Stop()

	mgr := newCollectingManager(1)
	run := types.RunTestCase{
		TestSet: "set",
		TestCase: types.TestCase{
			Name:        "dup-case",
			File:        "dup.xq",
			InlineQuery: "1 eq 1",
			Environment: &types.Environment{
				Sources: []types.Source{{File: "doc.xml", Role: types.RoleContext}},
			},
			Result: types.AssertTrue{},
		},
		Manager: mgr,
	}
	rn.Submit(run)
	rn.Submit(run)
	mgr.waitFor(t, 1)

	// A second RanTestCase for the same id must never arrive: give the
	// loop a moment to have processed a duplicate if it were going to.
	select {
	case <-mgr.done:
		t.Fatal("duplicate RunTestCase produced a second verdict")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherInvalidTestCaseEmitsErrorImmediately(t *testing.T) {
	engine := enginetest.New()
	rn := newTestDispatcher(nil, engine)
	defer rn.Stop()

	mgr := newCollectingManager(1)
	run := types.RunTestCase{
		TestSet:  "set",
		TestCase: types.TestCase{Name: "no-query", File: "empty.xq"},
		Manager:  mgr,
	}
	rn.Submit(run)
	mgr.waitFor(t, 1)

	result, ok := mgr.result(run.ID())
	require.True(t, ok)
	assert.Equal(t, types.VerdictError, result.Kind)
	assert.True(t, IsInvalidTestCase(result.Cause))
}

func TestDispatcherResourceFetchFailureEmitsErrorVerdict(t *testing.T) {
	engine := enginetest.New()
	rn := newTestDispatcher(nil, engine) // no fixtures registered: every fetch fails
	defer rn.Stop()

	mgr := newCollectingManager(1)
	run := types.RunTestCase{
		TestSet: "set",
		TestCase: types.TestCase{
			Name:        "missing-source",
			File:        "case3.xq",
			InlineQuery: "1 eq 1",
			Environment: &types.Environment{
				Sources: []types.Source{{File: "missing.xml", Role: types.RoleContext}},
			},
			Result: types.AssertTrue{},
		},
		Manager: mgr,
	}
	rn.Submit(run)
	mgr.waitFor(t, 1)

	result, ok := mgr.result(run.ID())
	require.True(t, ok)
	assert.Equal(t, types.VerdictError, result.Kind)
	var fetchErr *ResourceFetchError
	assert.True(t, errors.As(result.Cause, &fetchErr))
}
