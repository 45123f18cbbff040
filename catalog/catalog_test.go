package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xqts-suite/runnercore/types"
)

func TestValidateRequiresFile(t *testing.T) {
	tc := TestCase{Name: "case1", InlineQuery: "1 eq 1"}
	err := Validate(tc)
	assert.ErrorContains(t, err, "has no file")
}

func TestValidateRejectsBothQueryForms(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", InlineQuery: "1 eq 1", QueryPath: "case1.xq"}
	err := Validate(tc)
	assert.ErrorContains(t, err, "declares both an inline query and a query path")
}

func TestValidateAcceptsInlineQueryOnly(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", InlineQuery: "1 eq 1"}
	assert.NoError(t, Validate(tc))
}

func TestValidateAcceptsQueryPathOnly(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", QueryPath: "case1.xq"}
	assert.NoError(t, Validate(tc))
}

func TestValidateRejectsEmptyAllOf(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", InlineQuery: "1 eq 1", Result: types.AllOf{}}
	err := Validate(tc)
	assert.ErrorContains(t, err, "all-of has no children")
}

func TestValidateRejectsEmptyAnyOf(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", InlineQuery: "1 eq 1", Result: types.AnyOf{}}
	err := Validate(tc)
	assert.ErrorContains(t, err, "any-of has no children")
}

func TestValidateRecursesIntoNestedComposites(t *testing.T) {
	tc := TestCase{
		Name:        "case1",
		File:        "case1.xq",
		InlineQuery: "1 eq 1",
		Result: types.AllOf{Children: []types.Assertion{
			types.AssertTrue{},
			types.AnyOf{Children: nil},
		}},
	}
	err := Validate(tc)
	assert.ErrorContains(t, err, "any-of has no children")
}

func TestValidateAcceptsWellFormedComposite(t *testing.T) {
	tc := TestCase{
		Name:        "case1",
		File:        "case1.xq",
		InlineQuery: "1 eq 1",
		Result: types.AllOf{Children: []types.Assertion{
			types.AssertTrue{},
			types.AnyOf{Children: []types.Assertion{types.AssertTrue{}}},
		}},
	}
	assert.NoError(t, Validate(tc))
}

func TestValidateAcceptsLeafResultWithNoComposite(t *testing.T) {
	tc := TestCase{Name: "case1", File: "case1.xq", InlineQuery: "1 eq 1", Result: types.AssertTrue{}}
	assert.NoError(t, Validate(tc))
}
