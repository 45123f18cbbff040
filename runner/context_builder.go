package runner

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xqts-suite/runnercore/enginebridge"
	"github.com/xqts-suite/runnercore/types"
)

// evalContext holds everything the primary query needs (spec §4.3).
type evalContext struct {
	Query               string
	BaseURI             *string
	ContextSequence     types.Sequence
	AvailableDocuments  map[string]types.Sequence
	AvailableCollections map[string][]types.Sequence
	AvailableTexts      map[string]enginebridge.TextResource
	Variables           map[string]types.Sequence
}

// buildContext assembles an evalContext from a resolved test case
// (spec §4.3). It short-circuits on the first failing step and
// accumulates the timing cost of every select-expression it must
// evaluate along the way.
func (r *Runner) buildContext(tc types.TestCase, env *types.ResolvedEnvironment) (*evalContext, types.Timings, error) {
	timings := types.Timings{}

	query, err := resolveQuery(tc, env)
	if err != nil {
		return nil, timings, &ContextBuildError{Step: "query", Err: err}
	}

	ec := &evalContext{
		Query:              query,
		AvailableDocuments: map[string]types.Sequence{},
		AvailableCollections: map[string][]types.Sequence{},
		AvailableTexts:     map[string]enginebridge.TextResource{},
		Variables:          map[string]types.Sequence{},
	}

	ec.BaseURI = resolveBaseURI(tc, env)

	if tc.Environment != nil {
		ctxSeq, err := r.resolveContextSequence(tc.Environment, env)
		if err != nil {
			return nil, timings, &ContextBuildError{Step: "context-sequence", Err: err}
		}
		ec.ContextSequence = ctxSeq

		if err := r.resolveAvailableDocuments(tc.Environment, env, ec); err != nil {
			return nil, timings, &ContextBuildError{Step: "available-documents", Err: err}
		}
		if err := r.resolveAvailableCollections(tc.Environment, env, ec); err != nil {
			return nil, timings, &ContextBuildError{Step: "available-collections", Err: err}
		}
		if err := resolveAvailableTexts(tc.Environment, env, ec); err != nil {
			return nil, timings, &ContextBuildError{Step: "available-texts", Err: err}
		}
		if err := r.resolveVariables(tc.Environment, ec, &timings); err != nil {
			return nil, timings, &ContextBuildError{Step: "external-variables", Err: err}
		}
	}

	return ec, timings, nil
}

func resolveQuery(tc types.TestCase, env *types.ResolvedEnvironment) (string, error) {
	if !tc.IsQueryPath() {
		return tc.InlineQuery, nil
	}
	if env.Query == nil {
		return "", fmt.Errorf("query file %q never resolved", tc.QueryPath)
	}
	return *env.Query, nil
}

// resolveBaseURI applies the static-base-URI sentinel rule (spec §4.3,
// §6 "Sentinels").
func resolveBaseURI(tc types.TestCase, env *types.ResolvedEnvironment) *string {
	if tc.Environment != nil && tc.Environment.StaticBaseURI != "" && tc.Environment.StaticBaseURI != types.UndefinedStaticBaseURI {
		u := tc.Environment.StaticBaseURI
		return &u
	}
	fileURI := (&url.URL{Scheme: "file", Path: tc.File}).String()
	return &fileURI
}

func (r *Runner) resolveContextSequence(environment *types.Environment, env *types.ResolvedEnvironment) (types.Sequence, error) {
	if environment.Name == types.EmptyEnvironmentName {
		return types.EmptySequence, nil
	}
	for _, s := range environment.Sources {
		if s.Role != types.RoleContext {
			continue
		}
		bytes, ok := env.SourceBytes(s.File)
		if !ok {
			return nil, fmt.Errorf("context source %q never resolved", s.File)
		}
		return r.engine.ParseXml(r.ctx, bytes)
	}
	return nil, nil
}

func (r *Runner) resolveAvailableDocuments(environment *types.Environment, env *types.ResolvedEnvironment, ec *evalContext) error {
	for _, s := range environment.Sources {
		if s.Role != "" || s.URI == "" {
			continue
		}
		bytes, ok := env.SourceBytes(s.File)
		if !ok {
			return fmt.Errorf("document source %q never resolved", s.File)
		}
		seq, err := r.engine.ParseXml(r.ctx, bytes)
		if err != nil {
			return err
		}
		ec.AvailableDocuments[s.URI] = seq
	}
	return nil
}

func (r *Runner) resolveAvailableCollections(environment *types.Environment, env *types.ResolvedEnvironment, ec *evalContext) error {
	for _, c := range environment.Collections {
		docs := make([]types.Sequence, 0, len(c.Sources))
		for _, s := range c.Sources {
			bytes, ok := env.SourceBytes(s.File)
			if !ok {
				return fmt.Errorf("collection member %q never resolved", s.File)
			}
			seq, err := r.engine.ParseXml(r.ctx, bytes)
			if err != nil {
				return err
			}
			docs = append(docs, seq)
		}
		ec.AvailableCollections[c.URI] = docs
	}
	return nil
}

func resolveAvailableTexts(environment *types.Environment, env *types.ResolvedEnvironment, ec *evalContext) error {
	for _, s := range environment.Resources {
		bytes, ok := env.Resource(s.File)
		if !ok {
			return fmt.Errorf("resource %q never resolved", s.File)
		}
		charset := s.Encoding
		if charset == "" {
			charset = "UTF-8"
		}
		text, err := decodeCharset(bytes, charset)
		if err != nil {
			return err
		}
		if s.URI != "" {
			ec.AvailableTexts[s.URI] = enginebridge.TextResource{Charset: charset, Text: text}
		}
	}
	return nil
}

// decodeCharset only recognizes UTF-8 family names; anything else is
// reported as unrecognized per spec §4.3 (real transcoding is out of
// scope for this core).
func decodeCharset(bytes []byte, charset string) (string, error) {
	switch strings.ToUpper(charset) {
	case "UTF-8", "UTF8", "US-ASCII", "ASCII":
		return string(bytes), nil
	default:
		return "", fmt.Errorf("unrecognized charset %q", charset)
	}
}

func (r *Runner) resolveVariables(environment *types.Environment, ec *evalContext, timings *types.Timings) error {
	for _, p := range environment.Params {
		if p.Select == nil {
			ec.Variables[p.Name] = types.EmptySequence
			continue
		}
		if p.As == "empty" {
			ec.Variables[p.Name] = types.EmptySequence
			continue
		}
		result, err := r.engine.ExecuteQuery(r.ctx, enginebridge.ExecuteRequest{Query: *p.Select})
		if err != nil {
			return err
		}
		*timings = timings.Add(result.Timings)
		if result.QueryError != nil {
			return result.QueryError
		}
		ec.Variables[p.Name] = result.Sequence
	}
	return nil
}
