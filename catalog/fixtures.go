package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xqts-suite/runnercore/types"
)

// fixtureCase is the YAML-decodable shape of one local fixture test
// case: a flattened, discriminated-union stand-in for the XML catalog
// entries a real XQTS parser would hand the runner (spec §6 "local
// fixture TestCase descriptors").
type fixtureCase struct {
	Name        string         `yaml:"name"`
	File        string         `yaml:"file"`
	InlineQuery string         `yaml:"inlineQuery"`
	QueryPath   string         `yaml:"queryPath"`
	Environment *fixtureEnv    `yaml:"environment"`
	Result      *fixtureResult `yaml:"result"`
}

type fixtureEnv struct {
	Name          string          `yaml:"name"`
	StaticBaseURI string          `yaml:"staticBaseUri"`
	Schemas       []fixtureSource `yaml:"schemas"`
	Sources       []fixtureSource `yaml:"sources"`
	Resources     []fixtureSource `yaml:"resources"`
}

type fixtureSource struct {
	File     string `yaml:"file"`
	Role     string `yaml:"role"`
	URI      string `yaml:"uri"`
	Encoding string `yaml:"encoding"`
}

// fixtureResult is a discriminated union over the assertion kinds a
// local fixture file can express, keyed by Kind.
type fixtureResult struct {
	Kind     string          `yaml:"kind"`
	XPath    string          `yaml:"xpath"`
	Expected string          `yaml:"expected"`
	Code     string          `yaml:"code"`
	Children []fixtureResult `yaml:"children"`
}

func (fr fixtureResult) toAssertion() (types.Assertion, error) {
	switch fr.Kind {
	case "assert-true":
		return types.AssertTrue{}, nil
	case "assert-false":
		return types.AssertFalse{}, nil
	case "assert-empty":
		return types.AssertEmpty{}, nil
	case "assert":
		return types.Assert{XPath: fr.XPath}, nil
	case "assert-eq":
		return types.AssertEq{Expr: fr.Expected}, nil
	case "assert-deep-eq":
		return types.AssertDeepEq{Expr: fr.Expected}, nil
	case "assert-string-value":
		return types.AssertStringValue{Expected: fr.Expected}, nil
	case "error":
		return types.ExpectError{Code: fr.Code}, nil
	case "all-of", "any-of":
		children := make([]types.Assertion, 0, len(fr.Children))
		for _, c := range fr.Children {
			child, err := c.toAssertion()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if fr.Kind == "all-of" {
			return types.AllOf{Children: children}, nil
		}
		return types.AnyOf{Children: children}, nil
	default:
		return nil, fmt.Errorf("unrecognized result kind %q", fr.Kind)
	}
}

func toSources(fs []fixtureSource) []types.Source {
	if fs == nil {
		return nil
	}
	out := make([]types.Source, len(fs))
	for i, s := range fs {
		out[i] = types.Source{File: s.File, Role: s.Role, URI: s.URI, Encoding: s.Encoding}
	}
	return out
}

func (fc fixtureCase) toTestCase() (TestCase, error) {
	tc := TestCase{
		Name:        types.TestCaseName(fc.Name),
		File:        fc.File,
		InlineQuery: fc.InlineQuery,
		QueryPath:   fc.QueryPath,
	}
	if fc.Environment != nil {
		tc.Environment = &types.Environment{
			Name:          fc.Environment.Name,
			StaticBaseURI: fc.Environment.StaticBaseURI,
			Schemas:       toSources(fc.Environment.Schemas),
			Sources:       toSources(fc.Environment.Sources),
			Resources:     toSources(fc.Environment.Resources),
		}
	}
	if fc.Result != nil {
		assertion, err := fc.Result.toAssertion()
		if err != nil {
			return TestCase{}, err
		}
		tc.Result = assertion
	}
	return tc, nil
}

// LoadFixtures reads every *.yaml/*.yml file directly under dir as one
// fixtureCase, decodes and structurally Validates it, and returns the
// resulting TestCase set (spec §6's CLI "local fixture TestCase
// descriptors"). Sub-directories are not walked.
func LoadFixtures(dir string) ([]TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading fixtures dir: %w", err)
	}

	var cases []TestCase
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
		}

		var fc fixtureCase
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
		}

		tc, err := fc.toTestCase()
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", path, err)
		}
		if tc.File == "" {
			tc.File = entry.Name()
		}
		if err := Validate(tc); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}
