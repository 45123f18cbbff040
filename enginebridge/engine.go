// Package enginebridge defines the thin contract the runner core holds
// over the external XQuery evaluator (spec §4.4, §6). No implementor
// lives here; only the interface, its error shapes, and the literal
// helper-query text the runner is required to emit.
package enginebridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/xqts-suite/runnercore/types"
)

// ResultVariableName is the literal external-variable name every
// executeQueryWithResult call binds (spec §6 "Sentinels").
const ResultVariableName = "result"

// QueryError is a recoverable XQuery dynamic/static error the engine
// reports as an alternative outcome of ExecuteQuery, distinct from a
// Go error (which signals an unrecoverable engine exception).
type QueryError struct {
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MatchesCode reports whether this error's code satisfies an expected
// code, honoring the "*" wildcard (spec §4.5 assert-serialization-error).
func (e *QueryError) MatchesCode(expected string) bool {
	return e != nil && (expected == types.WildcardErrorCode || e.Code == expected)
}

// EngineException wraps an unrecoverable failure from the engine
// itself (as opposed to a QueryError produced by evaluating the user's
// query). OutOfMemoryError/StackOverflowError-equivalent panics are
// not converted into EngineException: the runner recovers them, logs
// them and re-raises the original panic value (spec §5's "logged and
// re-raised" rule).
type EngineException struct {
	Cause error
	Fatal bool // true for unrecoverable resource exhaustion, never swallowed
}

func (e *EngineException) Error() string { return fmt.Sprintf("engine exception: %v", e.Cause) }
func (e *EngineException) Unwrap() error { return e.Cause }

// ErrEngineFatal marks EngineException instances built for
// OutOfMemoryError/StackOverflowError-equivalent conditions.
var ErrEngineFatal = errors.New("fatal engine condition")

// TextResource is a decoded environment resource, keyed by its
// declared charset (spec §4.3 "Available text resources").
type TextResource struct {
	Charset string
	Text    string
}

// ExecuteRequest bundles every argument executeQuery accepts (spec §4.4).
type ExecuteRequest struct {
	Query         string
	CacheCompiled bool

	BaseURI         *string
	ContextSequence types.Sequence

	AvailableDocuments   map[string]types.Sequence
	AvailableCollections map[string][]types.Sequence
	AvailableTexts       map[string]TextResource

	Variables map[string]types.Sequence
}

// ExecuteResult is the outcome of one ExecuteQuery call: either a
// Sequence or a QueryError, always paired with the timings spent
// (spec §4.4 "Every engine call returns (compilationTime,
// executionTime) alongside its outcome").
type ExecuteResult struct {
	Sequence   types.Sequence
	QueryError *QueryError
	Timings    types.Timings
}

// Succeeded reports whether the primary query produced a result rather
// than a QueryError.
func (r ExecuteResult) Succeeded() bool { return r.QueryError == nil }

// Engine is the contract the runner holds over the embedded XQuery
// evaluator (spec §4.4, §6). Implementations must never retain state
// across calls that would violate the "connection acquired per
// test-case, released before the verdict" rule (spec §4.4, §5) —
// that lifecycle is the caller's (runner's) responsibility via
// ConnectionPool.Acquire and Connection.Close, not the Engine
// interface itself.
type Engine interface {
	// ExecuteQuery evaluates a query and returns either a Sequence or
	// a QueryError inside ExecuteResult; a non-nil error return means
	// an EngineException (unrecoverable) occurred instead.
	ExecuteQuery(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)

	// ParseXml parses raw bytes into a one-document Sequence.
	ParseXml(ctx context.Context, data []byte) (types.Sequence, error)

	// SequenceToString renders a sequence per the engine's default
	// (non-adaptive) string conversion.
	SequenceToString(seq types.Sequence) string

	// SequenceToStringAdaptive renders a sequence using the engine's
	// bounded, human-readable adaptive serialization, used to describe
	// actual results inside Failure reasons (spec §7 category 5).
	SequenceToStringAdaptive(seq types.Sequence) string
}

// Connection represents a scoped engine handle acquired before the
// primary query and released after the verdict is produced on every
// exit path (spec §4.4 "Scoped resource rule").
type Connection interface {
	Engine
	Close() error
}

// ConnectionPool acquires a Connection per test case. No type in this
// module implements it directly: an Engine without it, such as
// enginetest.FakeEngine, is adapted by NewSingleConnectionPool. A
// production engine binding would pool real evaluator sessions here.
type ConnectionPool interface {
	Acquire(ctx context.Context) (Connection, error)
}

// singleConnEngine wraps a bare Engine as a no-op Connection, for
// implementors with no per-call session state to release.
type singleConnEngine struct{ Engine }

func (singleConnEngine) Close() error { return nil }

// singleConnPool adapts a bare Engine into a ConnectionPool whose
// Acquire always hands back the same underlying Engine.
type singleConnPool struct{ engine Engine }

func (p singleConnPool) Acquire(_ context.Context) (Connection, error) {
	return singleConnEngine{p.engine}, nil
}

// NewSingleConnectionPool adapts engine into a ConnectionPool for
// callers that need the Acquire/Close lifecycle (spec §4.4 "Scoped
// resource rule") but hold an Engine with no real connection state,
// such as enginetest.FakeEngine.
func NewSingleConnectionPool(engine Engine) ConnectionPool {
	return singleConnPool{engine: engine}
}

// ExecuteWithResult is the executeQueryWithResult convenience wrapper
// (spec §4.4): binds $result to the observed sequence and evaluates
// query against it, with an optional context sequence carried through.
func ExecuteWithResult(ctx context.Context, eng Engine, query string, cacheCompiled bool, contextSeq types.Sequence, result types.Sequence) (ExecuteResult, error) {
	return eng.ExecuteQuery(ctx, ExecuteRequest{
		Query:           query,
		CacheCompiled:   cacheCompiled,
		ContextSequence: contextSeq,
		Variables:       map[string]types.Sequence{ResultVariableName: result},
	})
}
