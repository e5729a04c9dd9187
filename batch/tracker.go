package batch

import "sync/atomic"

const (
	undecided int32 = iota
	decidedCommit
	decidedRollback
)

// Outcome is the transient per-batch state: how many items completed before
// the decision and the failure that decided it, if any.
type Outcome struct {
	Completed int
	Failed    bool
	Err       error
}

// Tracker decides "all items done" and "first failure" exactly once each,
// whatever order item completions arrive in. The decision callbacks run on
// the goroutine that made the decision.
type Tracker struct {
	total      int64
	completed  atomic.Int64
	decision   atomic.Int32
	failure    atomic.Pointer[error]
	onCommit   func()
	onRollback func(error)
}

// NewTracker returns a tracker for n items. n must be positive.
func NewTracker(n int, onCommit func(), onRollback func(error)) *Tracker {
	return &Tracker{total: int64(n), onCommit: onCommit, onRollback: onRollback}
}

// RecordSuccess counts one finished item and fires onCommit when the last of
// n items succeeds with no failure recorded. It is inert after a failure.
func (t *Tracker) RecordSuccess() {
	if t.decision.Load() != undecided {
		return
	}
	if t.completed.Add(1) != t.total {
		return
	}
	if t.decision.CompareAndSwap(undecided, decidedCommit) && t.onCommit != nil {
		t.onCommit()
	}
}

// RecordFailure fires onRollback for the first failure only and reports
// whether this call was that first failure.
func (t *Tracker) RecordFailure(err error) bool {
	if !t.decision.CompareAndSwap(undecided, decidedRollback) {
		return false
	}
	t.failure.Store(&err)
	if t.onRollback != nil {
		t.onRollback(err)
	}
	return true
}

// Failed reports whether a failure has been recorded.
func (t *Tracker) Failed() bool {
	return t.decision.Load() == decidedRollback
}

// Outcome snapshots the tracker. It is meaningful once every item has
// reported.
func (t *Tracker) Outcome() Outcome {
	o := Outcome{Completed: int(t.completed.Load())}
	if p := t.failure.Load(); p != nil {
		o.Failed = true
		o.Err = *p
	}
	return o
}
