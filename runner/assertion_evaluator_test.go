package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xqts-suite/runnercore/enginebridge"
	"github.com/xqts-suite/runnercore/enginebridge/enginetest"
	"github.com/xqts-suite/runnercore/types"
)

func newTestRunner(engine *enginetest.FakeEngine) *Runner {
	return New(nil, engine, nil)
}

func TestEvaluateExpectedNilExpectedIsError(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	v := r.evaluateExpected(ec, evalOutcome{sequence: types.EmptySequence}, nil, &timings)
	assert.Equal(t, types.VerdictError, v.kind)
}

func TestEvaluateExpectedErrorOutcomeMatchesExpectError(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "FOER0000"}}
	v := r.evaluateExpected(ec, out, types.ExpectError{Code: "FOER0000"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateExpectedErrorOutcomeWildcardMatches(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "XPTY0004"}}
	v := r.evaluateExpected(ec, out, types.ExpectError{Code: types.WildcardErrorCode}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateExpectedErrorOutcomeMismatchIsFailure(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "FOER0000"}}
	v := r.evaluateExpected(ec, out, types.ExpectError{Code: "XPTY0004"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateExpectedErrorOutcomeAnyOfFindsNestedMatch(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "FOER0000"}}
	expected := types.AnyOf{Children: []types.Assertion{
		types.AssertTrue{},
		types.ExpectError{Code: "FOER0000"},
	}}
	v := r.evaluateExpected(ec, out, expected, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateExpectedErrorOutcomeAnyOfNoMatchIsFailure(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "FOER0000"}}
	expected := types.AnyOf{Children: []types.Assertion{types.ExpectError{Code: "XPTY0004"}}}
	v := r.evaluateExpected(ec, out, expected, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateExpectedErrorOutcomeAgainstNonErrorExpectedIsFailure(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{queryErr: &enginebridge.QueryError{Code: "FOER0000"}}
	v := r.evaluateExpected(ec, out, types.AssertTrue{}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateExpectedNilSequenceIsError(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	v := r.evaluateExpected(ec, evalOutcome{}, types.AssertTrue{}, &timings)
	assert.Equal(t, types.VerdictError, v.kind)
}

func TestEvaluateExpectedSequenceAgainstExpectErrorIsFailure(t *testing.T) {
	r := newTestRunner(enginetest.New())
	ec := &evalContext{}
	var timings types.Timings

	out := evalOutcome{sequence: types.NewSequence(types.BooleanValue{Value: true})}
	v := r.evaluateExpected(ec, out, types.ExpectError{Code: "*"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAssertTrueFalse(t *testing.T) {
	r := newTestRunner(enginetest.New())
	trueSeq := types.NewSequence(types.BooleanValue{Value: true})
	falseSeq := types.NewSequence(types.BooleanValue{Value: false})
	var timings types.Timings

	assert.Equal(t, types.VerdictPass, r.evaluateNode(&evalContext{}, trueSeq, types.AssertTrue{}, &timings).kind)
	assert.Equal(t, types.VerdictFailure, r.evaluateNode(&evalContext{}, falseSeq, types.AssertTrue{}, &timings).kind)
	assert.Equal(t, types.VerdictPass, r.evaluateNode(&evalContext{}, falseSeq, types.AssertFalse{}, &timings).kind)
}

func TestEvaluateNodeAssertEmpty(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	assert.Equal(t, types.VerdictPass, r.evaluateNode(&evalContext{}, types.EmptySequence, types.AssertEmpty{}, &timings).kind)
	assert.Equal(t, types.VerdictFailure,
		r.evaluateNode(&evalContext{}, types.NewSequence(types.StringValue{Value: "x"}), types.AssertEmpty{}, &timings).kind)
}

func TestEvaluateNodeAssertCount(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.StringValue{Value: "a"}, types.StringValue{Value: "b"})
	var timings types.Timings

	assert.Equal(t, types.VerdictPass, r.evaluateNode(&evalContext{}, seq, types.AssertCount{N: 2}, &timings).kind)
	f := r.evaluateNode(&evalContext{}, seq, types.AssertCount{N: 3}, &timings)
	assert.Equal(t, types.VerdictFailure, f.kind)
	assert.Contains(t, f.reason, "expected count 3")
}

func TestEvaluateNodeAssertDeepEqAndEq(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(enginetest.NumberValue{Value: 1}, enginetest.NumberValue{Value: 2})
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, seq, types.AssertDeepEq{Expr: "1, 2"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	single := types.NewSequence(enginetest.NumberValue{Value: 5})
	v = r.evaluateNode(&evalContext{}, single, types.AssertEq{Expr: "5"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAssertPermutation(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(enginetest.NumberValue{Value: 2}, types.StringValue{Value: "a"}, enginetest.NumberValue{Value: 1})
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, seq, types.AssertPermutation{Expr: `1, "a", 2`}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAssertStringValueNormalizeSpace(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.StringValue{Value: "  hello   world  "})
	var timings types.Timings

	node := types.AssertStringValue{Expected: "hello world", NormalizeSpace: true}
	v := r.evaluateNode(&evalContext{}, seq, node, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAssertStringValueExactMismatch(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.StringValue{Value: "hello"})
	var timings types.Timings

	node := types.AssertStringValue{Expected: "goodbye"}
	v := r.evaluateNode(&evalContext{}, seq, node, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAssertTypeWildcard(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, types.NewSequence(types.StringValue{Value: "x"}), types.AssertType{TypeExpr: "*"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAssertTypeEmptyResult(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	empty := types.EmptySequence
	// Per the wildcard/empty-only rule, an explicit base type fails on an
	// empty result even under a "?" or "*" cardinality marker.
	v := r.evaluateNode(&evalContext{}, empty, types.AssertType{TypeExpr: "xs:string?"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)

	v = r.evaluateNode(&evalContext{}, empty, types.AssertType{TypeExpr: "empty"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, empty, types.AssertType{TypeExpr: "*"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAssertTypeCardinalityOnNonEmpty(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	one := types.NewSequence(types.StringValue{Value: "a"})
	two := types.NewSequence(types.StringValue{Value: "a"}, types.StringValue{Value: "b"})

	v := r.evaluateNode(&evalContext{}, one, types.AssertType{TypeExpr: "xs:string?"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, two, types.AssertType{TypeExpr: "xs:string?"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAssertTypeSubtypeCheck(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	seq := types.NewSequence(types.StringValue{Value: "a"}, types.StringValue{Value: "b"})
	v := r.evaluateNode(&evalContext{}, seq, types.AssertType{TypeExpr: "xs:string+"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, seq, types.AssertType{TypeExpr: "xs:boolean+"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeSerializationMatches(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.StringValue{Value: "abbbc"})
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, seq, types.SerializationMatches{Regex: "^ab+c$"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, seq, types.SerializationMatches{Regex: "^zzz$"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAssertSerializationError(t *testing.T) {
	fe := enginetest.New()
	fe.StubError(enginebridge.QueryAssertXmlSerialization, &enginebridge.QueryError{Code: "SENR0001"}, types.Timings{})
	r := newTestRunner(fe)
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, types.NewSequence(types.StringValue{Value: "x"}), types.AssertSerializationError{Code: "SENR0001"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, types.NewSequence(types.StringValue{Value: "x"}), types.AssertSerializationError{Code: "SENR0002"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAssertXmlRoundTrip(t *testing.T) {
	fe := enginetest.New()
	r := newTestRunner(fe)
	seq, err := fe.ParseXml(context.Background(), []byte(`<x/>`))
	require.NoError(t, err)
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, seq, types.AssertXml{Expected: "<x/>"}, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)

	v = r.evaluateNode(&evalContext{}, seq, types.AssertXml{Expected: "<y/>"}, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
	assert.NotContains(t, v.reason, "ignorable-wrapper")
}

func TestEvaluateNodeAllOfShortCircuits(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.BooleanValue{Value: true})
	var timings types.Timings

	node := types.AllOf{Children: []types.Assertion{types.AssertTrue{}, types.AssertFalse{}}}
	v := r.evaluateNode(&evalContext{}, seq, node, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
}

func TestEvaluateNodeAnyOfPassesOnFirstMatch(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.BooleanValue{Value: true})
	var timings types.Timings

	node := types.AnyOf{Children: []types.Assertion{types.AssertFalse{}, types.AssertTrue{}}}
	v := r.evaluateNode(&evalContext{}, seq, node, &timings)
	assert.Equal(t, types.VerdictPass, v.kind)
}

func TestEvaluateNodeAnyOfFailsWithJoinedReasons(t *testing.T) {
	r := newTestRunner(enginetest.New())
	seq := types.NewSequence(types.BooleanValue{Value: true})
	var timings types.Timings

	node := types.AnyOf{Children: []types.Assertion{types.AssertFalse{}, types.AssertCount{N: 5}}}
	v := r.evaluateNode(&evalContext{}, seq, node, &timings)
	assert.Equal(t, types.VerdictFailure, v.kind)
	assert.Contains(t, v.reason, "assert-false")
	assert.Contains(t, v.reason, "assert-count")
}

func TestEvaluateNodeUnrecognizedKindIsError(t *testing.T) {
	r := newTestRunner(enginetest.New())
	var timings types.Timings

	v := r.evaluateNode(&evalContext{}, types.EmptySequence, unknownAssertion{}, &timings)
	assert.Equal(t, types.VerdictError, v.kind)
}

type unknownAssertion struct{}

func (unknownAssertion) Kind() string { return "unknown" }
