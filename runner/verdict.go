package runner

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xqts-suite/runnercore/enginebridge"
	"github.com/xqts-suite/runnercore/types"
)

// execute performs the synchronous portion of RunTestCaseInternal
// (spec §4.2 case 4): context building, the primary query, assertion
// evaluation, and verdict construction (§4.3–§4.6). Every exit path
// carries the accumulated (compilationTime, executionTime) sum.
//
// A Connection is acquired from r.pool before any of this runs and
// released on every exit path, including a panicking engine, which is
// logged and re-raised rather than swallowed (spec §4.4 "Scoped
// resource rule", §7 "Fatal memory/stack errors are logged and
// re-raised").
func (r *Runner) execute(pt *types.PendingTestCase) types.TestResult {
	id := pt.Run.ID()
	tc := pt.Run.TestCase

	ctx, span := tracer.Start(r.ctx, "runner.execute_query", trace.WithAttributes(
		attribute.String("test_case.id", id.String()),
	))
	defer span.End()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ErrorResult(id, &EngineQueryError{Err: err}, types.NoTimings)
	}
	prevEngine := r.engine
	r.engine = conn
	defer func() { r.engine = prevEngine }()
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.log.Error("engine connection close failed", "id", id, "err", cerr)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("fatal engine condition", "id", id, "panic", rec)
			panic(rec)
		}
	}()

	ec, timings, err := r.buildContext(tc, &pt.Environment)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ErrorResult(id, err, timings)
	}

	primary, err := r.engine.ExecuteQuery(ctx, enginebridge.ExecuteRequest{
		Query:                ec.Query,
		CacheCompiled:        true,
		BaseURI:              ec.BaseURI,
		ContextSequence:      ec.ContextSequence,
		AvailableDocuments:   ec.AvailableDocuments,
		AvailableCollections: ec.AvailableCollections,
		AvailableTexts:       ec.AvailableTexts,
		Variables:            ec.Variables,
	})
	if err != nil {
		r.log.Error("engine exception during primary query", "id", id, "err", err)
		span.SetStatus(codes.Error, err.Error())
		return types.ErrorResult(id, &EngineQueryError{Err: err}, timings)
	}
	timings = timings.Add(primary.Timings)

	outcome := evalOutcome{sequence: primary.Sequence, queryErr: primary.QueryError}
	v := r.evaluateExpected(ec, outcome, tc.Result, &timings)

	switch v.kind {
	case types.VerdictPass:
		return types.Pass(id, timings)
	case types.VerdictFailure:
		span.SetStatus(codes.Error, v.reason)
		return types.Failure(id, v.reason, timings)
	case types.VerdictAssumptionFailed:
		return types.AssumptionFailed(id, v.reason, timings)
	default:
		cause := v.reason
		if cause == "" {
			cause = "unspecified evaluator error"
		}
		span.SetStatus(codes.Error, cause)
		return types.ErrorResult(id, &EngineQueryError{Err: &evaluatorError{msg: cause}}, timings)
	}
}

// evaluatorError wraps a plain-string cause into an error, used only
// when the assertion evaluator itself reaches an Error verdict (spec
// §4.5's cross-matching table "result r, expected is absent → Error").
type evaluatorError struct{ msg string }

func (e *evaluatorError) Error() string { return e.msg }
