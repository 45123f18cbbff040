package types

// UndefinedStaticBaseURI is the sentinel value meaning "no static base
// URI was declared" (spec §6 "Sentinels").
const UndefinedStaticBaseURI = "#UNDEFINED"

// EmptyEnvironmentName is the well-known environment name that forces
// an empty context sequence regardless of any role="." source.
const EmptyEnvironmentName = "empty"

// RoleContext is the source role that marks the context-sequence
// document (role == ".").
const RoleContext = "."

// Source describes one environment source file.
type Source struct {
	File     string // path, resolved via the resource cache
	Role     string // optional; "." marks the context document
	URI      string // optional; used to key available-documents/collections
	Encoding string // optional; declared charset, defaults to UTF-8
}

// Collection describes a named collection of member sources.
type Collection struct {
	URI     string
	Sources []Source
}

// Param describes one external variable binding.
type Param struct {
	Name   string
	As     string  // optional declared type; "empty" forces the empty sequence
	Select *string // optional select expression; nil means "bind to empty sequence"
}

// Environment describes everything a test case's static/dynamic
// context can depend on.
type Environment struct {
	Name           string // e.g. "empty"
	StaticBaseURI  string // may be UndefinedStaticBaseURI or absent (empty string)
	Schemas        []Source
	Sources        []Source
	Resources      []Source
	Collections    []Collection
	Params         []Param
}

// TestCase is the immutable descriptor for a single test-case run,
// as handed to the runner by the (out of scope) catalog parser.
type TestCase struct {
	Name TestCaseName
	File string // filesystem path of the case; default base URI

	// Exactly one of InlineQuery/QueryPath should be set. Both empty
	// means "absent" (structurally invalid, spec §3).
	InlineQuery string
	QueryPath   string

	Environment *Environment // optional
	Result      Assertion    // optional; the expected-result assertion tree
}

// HasQuery reports whether the test case names an inline query or a
// query-file path (i.e. is not structurally invalid).
func (tc *TestCase) HasQuery() bool {
	return tc.InlineQuery != "" || tc.QueryPath != ""
}

// IsQueryPath reports whether the query must be resolved via the
// resource cache rather than used verbatim.
func (tc *TestCase) IsQueryPath() bool {
	return tc.InlineQuery == "" && tc.QueryPath != ""
}

// ResolvedEnvironment accumulates resources as they arrive from the
// cache. Entries are appended only; a path is present at most once
// per category (spec §3 invariant).
type ResolvedEnvironment struct {
	Schemas   []ResolvedResource
	Sources   []ResolvedResource
	Resources []ResolvedResource
	Query     *string // decoded only once the query path resolves
}

// ResolvedResource pairs a resolved path with its raw bytes. String
// decoding is deferred to point of use, since charset may vary.
type ResolvedResource struct {
	Path  string
	Bytes []byte
}

func (re *ResolvedEnvironment) lookup(resources []ResolvedResource, path string) ([]byte, bool) {
	for _, r := range resources {
		if r.Path == path {
			return r.Bytes, true
		}
	}
	return nil, false
}

// Schema returns the resolved bytes for a schema path, if present.
func (re *ResolvedEnvironment) Schema(path string) ([]byte, bool) { return re.lookup(re.Schemas, path) }

// SourceBytes returns the resolved bytes for a source path, if present.
func (re *ResolvedEnvironment) SourceBytes(path string) ([]byte, bool) {
	return re.lookup(re.Sources, path)
}

// Resource returns the resolved bytes for a resource path, if present.
func (re *ResolvedEnvironment) Resource(path string) ([]byte, bool) {
	return re.lookup(re.Resources, path)
}

// appendResolved appends a new entry for path iff one is not already
// present, preserving the "at most one entry per path" invariant.
func appendResolved(list []ResolvedResource, path string, bytes []byte) []ResolvedResource {
	for _, r := range list {
		if r.Path == path {
			return list
		}
	}
	return append(list, ResolvedResource{Path: path, Bytes: bytes})
}

// AddSchema records a resolved schema resource.
func (re *ResolvedEnvironment) AddSchema(path string, bytes []byte) {
	re.Schemas = appendResolved(re.Schemas, path, bytes)
}

// AddSource records a resolved source resource.
func (re *ResolvedEnvironment) AddSource(path string, bytes []byte) {
	re.Sources = appendResolved(re.Sources, path, bytes)
}

// AddResource records a resolved auxiliary resource.
func (re *ResolvedEnvironment) AddResource(path string, bytes []byte) {
	re.Resources = appendResolved(re.Resources, path, bytes)
}

// SetQuery records the decoded query-file text.
func (re *ResolvedEnvironment) SetQuery(text string) {
	re.Query = &text
}

// PendingTestCase pairs the original run request with its accumulating
// resolved environment. Mutated only by appending resolved entries;
// never shrinks (spec §3).
type PendingTestCase struct {
	Run         RunTestCase
	Environment ResolvedEnvironment
}

// RunTestCase is the inbound request to run one test case (spec §6).
type RunTestCase struct {
	TestSetRef TestSetRef
	TestSet    TestSetName
	TestCase   TestCase
	Manager    ManagerRef
}

// ID derives the TestCaseId this request will run under.
func (r RunTestCase) ID() TestCaseId {
	return TestCaseId{TestSet: r.TestSet, TestCase: r.TestCase.Name}
}

// ManagerRef is the opaque handle the runner uses to address the
// orchestrator that dispatched a RunTestCase (out of scope, spec §1).
type ManagerRef any
