// Package enginetest provides a scripted stand-in for enginebridge.Engine,
// used only by this module's own tests. It is not, and must never grow
// into, an XQuery implementation: real evaluators live outside this
// repository (spec §1 "Non-goals").
package enginetest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xqts-suite/runnercore/enginebridge"
	"github.com/xqts-suite/runnercore/types"
)

// Response is a canned outcome for one scripted query.
type Response struct {
	Result enginebridge.ExecuteResult
	Err    error
}

// FakeEngine answers ExecuteQuery from an exact-match script keyed by
// the trimmed query text, falling back to a small built-in evaluator
// covering the handful of expression shapes this module's own tests
// (and the helper queries in enginebridge/queries.go) actually produce:
// integer arithmetic, "eq" comparisons, deep-equal, xs:integer casts,
// count() over a parsed-XML context, string-join/normalize-space, and
// fn:matches. Anything outside that subset must be scripted explicitly.
type FakeEngine struct {
	Script map[string]Response

	// ParseXmlFunc overrides ParseXml when set; otherwise a minimal
	// built-in XML parser is used (see xml.go).
	ParseXmlFunc func(data []byte) (types.Sequence, error)
}

func New() *FakeEngine {
	return &FakeEngine{Script: make(map[string]Response)}
}

// Stub registers a canned successful result for an exact query string.
func (f *FakeEngine) Stub(query string, seq types.Sequence, timings types.Timings) *FakeEngine {
	f.Script[strings.TrimSpace(query)] = Response{Result: enginebridge.ExecuteResult{Sequence: seq, Timings: timings}}
	return f
}

// StubError registers a canned QueryError for an exact query string.
func (f *FakeEngine) StubError(query string, qerr *enginebridge.QueryError, timings types.Timings) *FakeEngine {
	f.Script[strings.TrimSpace(query)] = Response{Result: enginebridge.ExecuteResult{QueryError: qerr, Timings: timings}}
	return f
}

// StubException registers an unrecoverable engine exception.
func (f *FakeEngine) StubException(query string, err error) *FakeEngine {
	f.Script[strings.TrimSpace(query)] = Response{Err: err}
	return f
}

var defaultTimings = types.Timings{CompilationTime: 1, ExecutionTime: 1}

func (f *FakeEngine) ExecuteQuery(_ context.Context, req enginebridge.ExecuteRequest) (enginebridge.ExecuteResult, error) {
	key := strings.TrimSpace(req.Query)
	if resp, ok := f.Script[key]; ok {
		return resp.Result, resp.Err
	}
	return evaluateBuiltin(req)
}

func (f *FakeEngine) ParseXml(_ context.Context, data []byte) (types.Sequence, error) {
	if f.ParseXmlFunc != nil {
		return f.ParseXmlFunc(data)
	}
	return parseMinimalXML(data)
}

func (f *FakeEngine) SequenceToString(seq types.Sequence) string {
	return joinItems(seq, "")
}

func (f *FakeEngine) SequenceToStringAdaptive(seq types.Sequence) string {
	s := joinItems(seq, ", ")
	const bound = 256
	if len(s) > bound {
		return s[:bound] + "...(truncated)"
	}
	return s
}

func joinItems(seq types.Sequence, sep string) string {
	if seq == nil {
		return ""
	}
	var parts []string
	for i := 1; i <= seq.ItemCount(); i++ {
		parts = append(parts, itemString(seq.ItemAt(i)))
	}
	return strings.Join(parts, sep)
}

func itemString(it types.Item) string {
	switch v := it.(type) {
	case types.BooleanValue:
		return strconv.FormatBool(v.Value)
	case types.StringValue:
		return v.Value
	case NumberValue:
		return strconv.FormatFloat(v.Value, 'g', -1, 64)
	case NodeValue:
		return v.Serialize()
	default:
		return fmt.Sprintf("%v", it)
	}
}

var matchesFuncRe = regexp.MustCompile(`^fn:matches\(\$result,\s*"((?:[^"\\]|\\.)*)",\s*"([^"]*)"\)$`)
var instanceOfRe = regexp.MustCompile(`^every \$i in \$result satisfies \$i instance of (.+)$`)

// evaluateBuiltin covers exactly the expression shapes this module's
// own inline test queries and enginebridge's Build*Query helpers
// produce. It is deliberately not a general XQuery evaluator.
func evaluateBuiltin(req enginebridge.ExecuteRequest) (enginebridge.ExecuteResult, error) {
	expr := stripDeclarations(strings.TrimSpace(req.Query))

	if m := matchesFuncRe.FindStringSubmatch(expr); m != nil {
		resultVar := req.Variables[enginebridge.ResultVariableName]
		re, err := regexp.Compile(applyFlags(m[1], m[2]))
		if err != nil {
			return enginebridge.ExecuteResult{}, &enginebridge.EngineException{Cause: err}
		}
		matched := re.MatchString(joinItems(resultVar, ""))
		return boolResult(matched), nil
	}

	if m := instanceOfRe.FindStringSubmatch(expr); m != nil {
		base := strings.TrimSpace(m[1])
		resultVar := req.Variables[enginebridge.ResultVariableName]
		ok := true
		for i := 1; i <= resultVar.ItemCount(); i++ {
			if !isSubtype(resultVar.ItemAt(i).TypeName(), base) {
				ok = false
				break
			}
		}
		return boolResult(ok), nil
	}

	env := map[string]types.Sequence{}
	for k, v := range req.Variables {
		env[k] = v
	}
	if req.ContextSequence != nil {
		env["."] = req.ContextSequence
	}

	seq, qerr, err := evalTopLevel(expr, env)
	if err != nil {
		return enginebridge.ExecuteResult{}, err
	}
	if qerr != nil {
		return enginebridge.ExecuteResult{QueryError: qerr, Timings: defaultTimings}, nil
	}
	return enginebridge.ExecuteResult{Sequence: seq, Timings: defaultTimings}, nil
}

func boolResult(b bool) enginebridge.ExecuteResult {
	return enginebridge.ExecuteResult{Sequence: types.NewSequence(types.BooleanValue{Value: b}), Timings: defaultTimings}
}

func isSubtype(actual, base string) bool {
	if base == "*" || base == "item()" {
		return true
	}
	return actual == base
}

// stripDeclarations removes leading `declare variable ...;` /
// `declare function ...;` prologues this module's own helper queries
// prepend, since the fake engine hardcodes the two declarations it
// needs to know about (local:sort-key, local:default-serialization)
// rather than interpreting arbitrary function bodies.
func stripDeclarations(query string) string {
	for strings.HasPrefix(query, "declare") {
		idx := findDeclarationEnd(query)
		if idx < 0 {
			break
		}
		query = strings.TrimSpace(query[idx+1:])
	}
	return query
}

func findDeclarationEnd(query string) int {
	depth := 0
	for i, r := range query {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ';':
			if depth <= 0 {
				return i
			}
		}
	}
	return -1
}

func applyFlags(pattern, flags string) string {
	if flags == "" {
		return pattern
	}
	return "(?" + flags + ")" + pattern
}
