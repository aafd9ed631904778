package grebedb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestFlushTrackerNoFlushWithoutModifications(t *testing.T) {
	c := &fakeClock{now: time.Unix(0, 0)}
	tr := newFlushTracker(100, c)
	c.advance(time.Hour)
	assert.False(t, tr.ShouldFlush())
}

func TestFlushTrackerFlushesAtBaseThresholdAfterLongWait(t *testing.T) {
	c := &fakeClock{now: time.Unix(0, 0)}
	tr := newFlushTracker(100, c)
	for i := 0; i < 100; i++ {
		tr.RecordModification()
	}
	c.advance(301 * time.Second)
	assert.True(t, tr.ShouldFlush())
}

func TestFlushTrackerDoesNotFlushBaseThresholdBeforeLongWait(t *testing.T) {
	c := &fakeClock{now: time.Unix(0, 0)}
	tr := newFlushTracker(100, c)
	for i := 0; i < 100; i++ {
		tr.RecordModification()
	}
	c.advance(10 * time.Second)
	assert.False(t, tr.ShouldFlush())
}

func TestFlushTrackerFlushesAtDoubleThresholdAfterShortWait(t *testing.T) {
	c := &fakeClock{now: time.Unix(0, 0)}
	tr := newFlushTracker(100, c)
	for i := 0; i < 200; i++ {
		tr.RecordModification()
	}
	c.advance(61 * time.Second)
	assert.True(t, tr.ShouldFlush())
}

func TestFlushTrackerResetClearsState(t *testing.T) {
	c := &fakeClock{now: time.Unix(0, 0)}
	tr := newFlushTracker(100, c)
	for i := 0; i < 200; i++ {
		tr.RecordModification()
	}
	c.advance(61 * time.Second)
	require := assert.New(t)
	require.True(tr.ShouldFlush())
	tr.Reset()
	require.False(tr.ShouldFlush())
}
