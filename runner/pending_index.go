package runner

import "github.com/xqts-suite/runnercore/types"

// category is one of the four resource-waiter buckets (spec §4.1).
type category int

const (
	catSchema category = iota
	catSource
	catResource
	catQuery
	numCategories
)

// ResourcePaths lists the paths a test case must resolve before it is
// ready to run, grouped by category (spec §4.1/§4.2). Collection
// member sources are folded into Sources, since they resolve into the
// same ResolvedEnvironment.Sources list the context builder consults.
type ResourcePaths struct {
	Schemas   []string
	Sources   []string
	Resources []string
	QueryPath string // empty means "no query-file waiter"
}

func (p ResourcePaths) empty() bool {
	return len(p.Schemas) == 0 && len(p.Sources) == 0 && len(p.Resources) == 0 && p.QueryPath == ""
}

// pendingIndex maintains the four path→waiters maps plus the
// TestCaseId→PendingTestCase table (spec §4.1). It is owned
// exclusively by one Runner's single-threaded message loop; no
// synchronization is needed (spec §5, §9 "Actor → state-machine").
type pendingIndex struct {
	waiters   [numCategories]map[string]map[types.TestCaseId]struct{}
	pending   map[types.TestCaseId]*types.PendingTestCase
	remaining map[types.TestCaseId]int
}

func newPendingIndex() *pendingIndex {
	pi := &pendingIndex{
		pending:   make(map[types.TestCaseId]*types.PendingTestCase),
		remaining: make(map[types.TestCaseId]int),
	}
	for i := range pi.waiters {
		pi.waiters[i] = make(map[string]map[types.TestCaseId]struct{})
	}
	return pi
}

// isPending reports whether id already has a live PendingTestCase,
// used to no-op duplicate RunTestCase submissions (spec §4.2).
func (pi *pendingIndex) isPending(id types.TestCaseId) bool {
	_, ok := pi.pending[id]
	return ok
}

// register inserts a blank PendingTestCase for id iff none exists, and
// adds id to every category's waiter set for its paths. Returns the
// number of outstanding waits so the dispatcher can detect immediate
// readiness (zero dependencies) without a second lookup.
func (pi *pendingIndex) register(id types.TestCaseId, run types.RunTestCase, paths ResourcePaths) int {
	if pi.isPending(id) {
		return pi.remaining[id]
	}
	pi.pending[id] = &types.PendingTestCase{Run: run}

	add := func(cat category, path string) int {
		set := pi.waiters[cat][path]
		if set == nil {
			set = make(map[types.TestCaseId]struct{})
			pi.waiters[cat][path] = set
		}
		if _, dup := set[id]; dup {
			return 0
		}
		set[id] = struct{}{}
		return 1
	}
	count := 0
	for _, p := range paths.Schemas {
		count += add(catSchema, p)
	}
	for _, p := range paths.Sources {
		count += add(catSource, p)
	}
	for _, p := range paths.Resources {
		count += add(catResource, p)
	}
	if paths.QueryPath != "" {
		count += add(catQuery, paths.QueryPath)
	}
	pi.remaining[id] = count
	return count
}

// deliver appends a resolved entry of the corresponding kind to every
// waiter of path across all four categories, removes path from all
// four maps, and returns the subset of affected waiters that now
// await nothing at all (spec §4.1).
func (pi *pendingIndex) deliver(path string, data []byte) []types.TestCaseId {
	touched := make(map[types.TestCaseId]struct{})
	for cat := category(0); cat < numCategories; cat++ {
		waiters, ok := pi.waiters[cat][path]
		if !ok {
			continue
		}
		for id := range waiters {
			pt := pi.pending[id]
			if pt == nil {
				continue
			}
			switch cat {
			case catSchema:
				pt.Environment.AddSchema(path, data)
			case catSource:
				pt.Environment.AddSource(path, data)
			case catResource:
				pt.Environment.AddResource(path, data)
			case catQuery:
				pt.Environment.SetQuery(string(data))
			}
			touched[id] = struct{}{}
			pi.remaining[id]--
		}
		delete(pi.waiters[cat], path)
	}
	var ready []types.TestCaseId
	for id := range touched {
		if pi.remaining[id] <= 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// fail removes path from all four maps, drops the PendingTestCase for
// every affected waiter entirely, and returns their RunTestCase
// requests so the dispatcher can still emit an Error verdict through
// the originating Manager for each one (spec §4.1, §4.2 case 3).
func (pi *pendingIndex) fail(path string) []types.RunTestCase {
	affected := make(map[types.TestCaseId]struct{})
	for cat := category(0); cat < numCategories; cat++ {
		waiters, ok := pi.waiters[cat][path]
		if !ok {
			continue
		}
		for id := range waiters {
			affected[id] = struct{}{}
		}
		delete(pi.waiters[cat], path)
	}
	out := make([]types.RunTestCase, 0, len(affected))
	for id := range affected {
		if pt := pi.pending[id]; pt != nil {
			out = append(out, pt.Run)
		}
		pi.removeEverywhere(id)
		delete(pi.pending, id)
		delete(pi.remaining, id)
	}
	return out
}

// removeEverywhere drops id from every waiter set it still appears in,
// used when a case is abandoned outright by fail.
func (pi *pendingIndex) removeEverywhere(id types.TestCaseId) {
	for cat := range pi.waiters {
		for path, set := range pi.waiters[cat] {
			if _, ok := set[id]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(pi.waiters[cat], path)
				}
			}
		}
	}
}

// take removes and returns id's PendingTestCase when scheduling it for
// internal execution (spec §4.1).
func (pi *pendingIndex) take(id types.TestCaseId) *types.PendingTestCase {
	pt := pi.pending[id]
	delete(pi.pending, id)
	delete(pi.remaining, id)
	return pt
}
