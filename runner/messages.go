package runner

import (
	"time"

	"github.com/xqts-suite/runnercore/resourcecache"
	"github.com/xqts-suite/runnercore/types"
)

// message is the sum type the dispatcher's mailbox loop switches on
// (spec §4.2, §5 "Actor → state-machine"). Only this package
// constructs values of this type.
type message interface{ isMessage() }

// runTestCaseMsg wraps an inbound run request (spec §4.2 case 1).
type runTestCaseMsg struct {
	run types.RunTestCase
}

// cachedResourceMsg carries a successful resourcecache.Result
// (spec §4.2 case 2). elapsed is the GetResource round-trip latency,
// timestamped by fetchAll at request time.
type cachedResourceMsg struct {
	path    string
	bytes   []byte
	elapsed time.Duration
}

// resourceGetErrorMsg carries a failed resourcecache.Result
// (spec §4.2 case 3).
type resourceGetErrorMsg struct {
	path    string
	err     error
	elapsed time.Duration
}

// runTestCaseInternalMsg is self-posted once a case's dependencies are
// fully resolved, triggering synchronous execution (spec §4.2 case 4).
type runTestCaseInternalMsg struct {
	id types.TestCaseId
	pt *types.PendingTestCase
}

func (runTestCaseMsg) isMessage()         {}
func (cachedResourceMsg) isMessage()      {}
func (resourceGetErrorMsg) isMessage()    {}
func (runTestCaseInternalMsg) isMessage() {}

// fromResult adapts a resourcecache.Result into the matching message.
func fromResult(r resourcecache.Result, elapsed time.Duration) message {
	if r.Err != nil {
		return resourceGetErrorMsg{path: r.Path, err: r.Err, elapsed: elapsed}
	}
	return cachedResourceMsg{path: r.Path, bytes: r.Bytes, elapsed: elapsed}
}
