// Package runner implements the single-threaded test-case dispatcher:
// it accepts RunTestCase requests, resolves each case's dependent
// resources through a resourcecache.Cache, and once resolved builds a
// query context, evaluates the expected-result assertion tree against
// an enginebridge.Engine, and reports the verdict to a Manager.
package runner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xqts-suite/runnercore/enginebridge"
	"github.com/xqts-suite/runnercore/metrics"
	"github.com/xqts-suite/runnercore/resourcecache"
	"github.com/xqts-suite/runnercore/types"
)

// Runner owns one dispatcher loop. All mutable state (pendingIndex) is
// touched only from the loop goroutine, so the type carries no lock
// (spec §5, §9 "Actor → state-machine").
type Runner struct {
	runID  uuid.UUID
	cache  resourcecache.Cache
	engine enginebridge.Engine
	pool   enginebridge.ConnectionPool
	log    log.Logger
	stats  *metrics.Scoped

	mailbox chan message
	pending *pendingIndex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Runner, assigning it a fresh RunID (spec §3) baked into
// its logger's field set and its metrics label set. engine is used
// directly as a Connection unless it also implements
// enginebridge.ConnectionPool, in which case Acquire is used to scope
// one Connection per test case (spec §4.4 "Scoped resource rule").
func New(cache resourcecache.Cache, engine enginebridge.Engine, stats *metrics.Metrics) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.New()

	pool, ok := engine.(enginebridge.ConnectionPool)
	if !ok {
		pool = enginebridge.NewSingleConnectionPool(engine)
	}

	return &Runner{
		runID:   runID,
		cache:   cache,
		engine:  engine,
		pool:    pool,
		log:     log.Root().New("component", "runner", "runID", runID.String()),
		stats:   stats.ForRun(runID.String()),
		mailbox: make(chan message, 256),
		pending: newPendingIndex(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// RunID identifies this Runner instance for external log/metric
// correlation.
func (r *Runner) RunID() uuid.UUID { return r.runID }

// Start runs the mailbox loop until Stop is called. Call it once, in
// its own goroutine.
func (r *Runner) Start() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.mailbox:
			r.handle(msg)
		}
	}
}

// Stop cancels the loop and waits for it to exit.
func (r *Runner) Stop() {
	r.cancel()
	<-r.done
}

// Submit enqueues a RunTestCase request (spec §4.2 case 1). Safe to
// call from any goroutine.
func (r *Runner) Submit(run types.RunTestCase) {
	r.mailbox <- runTestCaseMsg{run: run}
}

func (r *Runner) handle(msg message) {
	switch m := msg.(type) {
	case runTestCaseMsg:
		r.log.Debug("message received", "kind", "run-test-case", "id", m.run.ID())
		r.handleRunTestCase(m.run)
	case cachedResourceMsg:
		r.log.Debug("message received", "kind", "cached-resource", "path", m.path)
		r.handleCachedResource(m.path, m.bytes, m.elapsed)
	case resourceGetErrorMsg:
		r.log.Debug("message received", "kind", "resource-get-error", "path", m.path)
		r.handleResourceGetError(m.path, m.err, m.elapsed)
	case runTestCaseInternalMsg:
		r.log.Debug("message received", "kind", "run-test-case-internal", "id", m.id)
		r.handleRunTestCaseInternal(m.id, m.pt)
	}
}

func (r *Runner) handleRunTestCase(run types.RunTestCase) {
	id := run.ID()
	if r.pending.isPending(id) {
		r.log.Debug("duplicate RunTestCase ignored", "id", id)
		return
	}

	if !run.TestCase.HasQuery() {
		r.emitError(run, &InvalidTestCaseError{Reason: "test case names neither an inline query nor a query file"})
		return
	}

	paths := collectPaths(run.TestCase)
	remaining := r.pending.register(id, run, paths)
	if remaining == 0 {
		pt := r.pending.take(id)
		r.mailbox <- runTestCaseInternalMsg{id: id, pt: pt}
		return
	}

	r.log.Debug("resource wait registered", "id", id, "remaining", remaining)
	r.fetchAll(paths)
}

// collectPaths derives the ResourcePaths a test case's environment
// depends on (spec §4.1).
func collectPaths(tc types.TestCase) ResourcePaths {
	var p ResourcePaths
	if tc.Environment != nil {
		for _, s := range tc.Environment.Schemas {
			p.Schemas = append(p.Schemas, s.File)
		}
		for _, s := range tc.Environment.Sources {
			p.Sources = append(p.Sources, s.File)
		}
		for _, s := range tc.Environment.Resources {
			p.Resources = append(p.Resources, s.File)
		}
		for _, c := range tc.Environment.Collections {
			for _, s := range c.Sources {
				p.Sources = append(p.Sources, s.File)
			}
		}
	}
	if tc.IsQueryPath() {
		p.QueryPath = tc.QueryPath
	}
	return p
}

// fetchAll issues one GetResource call per path; the cache is
// responsible for deduplicating concurrent requests for the same path.
// Each request's wall-clock latency is timestamped here and carried
// back through the resulting message so it can be recorded once the
// dispatcher loop observes it (spec §4.8's resource_fetch_duration_seconds).
func (r *Runner) fetchAll(paths ResourcePaths) {
	all := make([]string, 0, len(paths.Schemas)+len(paths.Sources)+len(paths.Resources)+1)
	all = append(all, paths.Schemas...)
	all = append(all, paths.Sources...)
	all = append(all, paths.Resources...)
	if paths.QueryPath != "" {
		all = append(all, paths.QueryPath)
	}
	for _, path := range all {
		path := path
		r.log.Debug("resource requested", "path", path)
		start := time.Now()
		ctx, span := tracer.Start(r.ctx, "runner.fetch_resource", trace.WithAttributes(
			attribute.String("resource.path", path),
		))
		results := r.cache.GetResource(ctx, path)
		go func() {
			defer span.End()
			select {
			case res, ok := <-results:
				if !ok {
					return
				}
				if res.Err != nil {
					span.SetStatus(codes.Error, res.Err.Error())
				}
				select {
				case r.mailbox <- fromResult(res, time.Since(start)):
				case <-r.ctx.Done():
				}
			case <-r.ctx.Done():
			}
		}()
	}
}

func (r *Runner) handleCachedResource(path string, bytes []byte, elapsed time.Duration) {
	r.stats.RecordResourceFetch(elapsed)
	r.log.Debug("resource delivered", "path", path, "elapsed", elapsed)
	ready := r.pending.deliver(path, bytes)
	for _, id := range ready {
		pt := r.pending.take(id)
		r.mailbox <- runTestCaseInternalMsg{id: id, pt: pt}
	}
}

func (r *Runner) handleResourceGetError(path string, err error, elapsed time.Duration) {
	r.stats.RecordResourceFetch(elapsed)
	failed := r.pending.fail(path)
	for _, run := range failed {
		r.log.Error("resource fetch failed", "path", path, "id", run.ID(), "err", err)
		r.emitError(run, &ResourceFetchError{Path: path, Err: err})
	}
}

func (r *Runner) handleRunTestCaseInternal(id types.TestCaseId, pt *types.PendingTestCase) {
	if pt == nil {
		return
	}
	manager, _ := pt.Run.Manager.(Manager)
	if manager != nil {
		manager.RunningTestCase(pt.Run.Manager, id)
	}

	_, span := tracer.Start(r.ctx, "runner.run_test_case", trace.WithAttributes(
		attribute.String("test_case.id", id.String()),
	))
	result := r.execute(pt)
	result.RunID = r.runID
	span.SetAttributes(attribute.String("test_case.verdict", string(result.Kind)))
	if result.Kind == types.VerdictError {
		span.SetStatus(codes.Error, result.String())
	}
	span.End()

	r.log.Debug("verdict emitted", "id", id, "verdict", result.Kind)
	r.stats.RecordVerdict(result.Kind)
	r.stats.RecordTimings(result.Timings)

	if manager != nil {
		manager.RanTestCase(pt.Run.Manager, result)
	}
}

func (r *Runner) emitError(run types.RunTestCase, err error) {
	id := run.ID()
	result := types.ErrorResult(id, err, types.NoTimings)
	result.RunID = r.runID
	r.log.Error("verdict emitted", "id", id, "verdict", result.Kind, "err", err)
	r.stats.RecordVerdict(result.Kind)
	if manager, ok := run.Manager.(Manager); ok && manager != nil {
		manager.RunningTestCase(run.Manager, id)
		manager.RanTestCase(run.Manager, result)
	}
}
