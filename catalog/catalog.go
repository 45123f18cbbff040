// Package catalog defines the shapes a real XQTS catalog parser would
// produce and a structural validator over them. Parsing XQTS's own XML
// catalog format is out of scope for this core; catalog only carries
// the types the runner consumes and the checks the dispatcher relies
// on before ever registering a case.
package catalog

import (
	"fmt"

	"github.com/xqts-suite/runnercore/types"
)

// TestCase is a re-export of the runner's own test-case shape: the
// catalog boundary produces exactly what the runner consumes, with no
// translation layer in between.
type TestCase = types.TestCase

// Environment is a re-export of the runner's environment shape.
type Environment = types.Environment

// Assertion is a re-export of the runner's assertion-tree shape.
type Assertion = types.Assertion

// Validate performs the structural checks a catalog parser must
// guarantee before a TestCase is handed to the dispatcher: a non-empty
// file, at most one query form (a case with neither an inline query
// nor a query path is not rejected here), and a well-formed assertion
// tree with no empty composites (spec §3 invariants, supplemented from
// original_source's catalog-loading validation).
func Validate(tc TestCase) error {
	if tc.File == "" {
		return fmt.Errorf("catalog: test case %q has no file", tc.Name)
	}
	if tc.InlineQuery != "" && tc.QueryPath != "" {
		return fmt.Errorf("catalog: test case %q declares both an inline query and a query path", tc.Name)
	}
	if tc.Result != nil {
		if err := validateAssertion(tc.Result); err != nil {
			return fmt.Errorf("catalog: test case %q: %w", tc.Name, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch node := a.(type) {
	case types.AllOf:
		if len(node.Children) == 0 {
			return fmt.Errorf("all-of has no children")
		}
		for _, c := range node.Children {
			if err := validateAssertion(c); err != nil {
				return err
			}
		}
	case types.AnyOf:
		if len(node.Children) == 0 {
			return fmt.Errorf("any-of has no children")
		}
		for _, c := range node.Children {
			if err := validateAssertion(c); err != nil {
				return err
			}
		}
	}
	return nil
}
