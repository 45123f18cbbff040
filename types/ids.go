// Package types defines the data model shared by the runner: test-case
// identifiers, the assertion tree, resolved environments, XDM sequence
// values and the four-variant verdict union.
package types

import "fmt"

// TestSetName identifies a group of test cases within the catalog.
type TestSetName string

// TestCaseName identifies a single test case within its test set.
type TestCaseName string

// TestCaseId uniquely identifies a test case within a run.
type TestCaseId struct {
	TestSet  TestSetName
	TestCase TestCaseName
}

func (id TestCaseId) String() string {
	return fmt.Sprintf("%s#%s", id.TestSet, id.TestCase)
}

// TestSetRef is an opaque reference to the owning test set, threaded
// through unchanged by the runner on behalf of the external manager.
type TestSetRef any
