package grebedb

import "time"

// clock is the injectable time source used by flushTracker so tests can
// drive the automatic-flush heuristic deterministically instead of
// sleeping.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// flushTracker decides when automatic_flush should fire, following a
// dual-threshold heuristic: flush once baseThreshold modifications have
// accumulated and 300 seconds have passed since the last flush, or once
// 2x baseThreshold modifications have accumulated and only 60 seconds
// have passed.
type flushTracker struct {
	clock         clock
	baseThreshold int
	modifications int
	lastFlush     time.Time
}

func newFlushTracker(baseThreshold int, c clock) *flushTracker {
	if c == nil {
		c = realClock{}
	}
	return &flushTracker{clock: c, baseThreshold: baseThreshold, lastFlush: c.Now()}
}

// RecordModification counts one put/remove toward the flush schedule.
func (f *flushTracker) RecordModification() {
	f.modifications++
}

// ShouldFlush reports whether enough modifications and time have passed
// to warrant an automatic flush.
func (f *flushTracker) ShouldFlush() bool {
	if f.modifications == 0 {
		return false
	}
	elapsed := f.clock.Now().Sub(f.lastFlush)
	if f.modifications >= f.baseThreshold && elapsed >= 300*time.Second {
		return true
	}
	if f.modifications >= f.baseThreshold*2 && elapsed >= 60*time.Second {
		return true
	}
	return false
}

// Reset marks that a flush just happened.
func (f *flushTracker) Reset() {
	f.modifications = 0
	f.lastFlush = f.clock.Now()
}
