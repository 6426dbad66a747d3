package playback

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	due     time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{due: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that comes due, in
// scheduling order, letting fired callbacks schedule followups.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && t.due <= c.now {
				next = t
				break
			}
		}
		if next != nil {
			next.stopped = true
		}
		c.mu.Unlock()
		if next == nil {
			return
		}
		next.fn()
	}
}

type tickRecorder struct {
	mu      sync.Mutex
	indexes []int
}

func (r *tickRecorder) record(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes = append(r.indexes, i)
}

func (r *tickRecorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.indexes))
	copy(out, r.indexes)
	return out
}

func timingsFor(durations ...float64) []ItemTiming {
	out := make([]ItemTiming, len(durations))
	for i, d := range durations {
		out[i] = ItemTiming{ItemID: "item", EffectiveDurationSeconds: d}
	}
	return out
}

func TestPlayerTicksThroughListAndWraps(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Swap(timingsFor(1, 3))

	p.Start()
	require.Equal(t, []int{0}, rec.seen(), "first tick fires immediately on start")

	clock.Advance(1100 * time.Millisecond)
	assert.Equal(t, []int{0, 1}, rec.seen())

	clock.Advance(3100 * time.Millisecond)
	assert.Equal(t, []int{0, 1, 0}, rec.seen(), "wraps back to the first item")
}

func TestPlayerEmptyListIdles(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)

	p.Start()
	clock.Advance(time.Minute)

	assert.Empty(t, rec.seen())
	assert.False(t, p.Active())
}

func TestPlayerStopHaltsNotifications(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Swap(timingsFor(1))
	p.Start()

	p.Stop()
	before := rec.seen()
	clock.Advance(time.Minute)

	assert.Equal(t, before, rec.seen())
	assert.False(t, p.Active())
}

func TestPlayerStopWaitsForInFlightNotification(t *testing.T) {
	clock := &fakeClock{}
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	p := NewPlayer(clock, func(int) {
		if calls.Add(1) == 1 {
			return // the immediate tick fired by Start
		}
		close(entered)
		<-release
	})
	p.Swap(timingsFor(1))
	p.Start()

	// Fire the scheduled tick off the test goroutine, like a real timer.
	go clock.Advance(1100 * time.Millisecond)
	<-entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick notification was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the notification completed")
	}

	clock.Advance(time.Minute)
	assert.Equal(t, int32(2), calls.Load(), "no notifications after Stop returned")
}

func TestPlayerZeroDurationDoesNotSpin(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Swap([]ItemTiming{{ItemID: "item", EffectiveDurationSeconds: 0}})
	p.Start()

	assert.Equal(t, []int{0}, rec.seen())
	clock.Advance(0)
	assert.Equal(t, []int{0}, rec.seen(), "next tick is deferred, never immediate")
	clock.Advance(time.Second)
	assert.Equal(t, []int{0, 0}, rec.seen())
	p.Stop()
}

func TestPlayerStopIsIdempotent(t *testing.T) {
	p := NewPlayer(&fakeClock{}, nil)
	p.Swap(timingsFor(1))
	p.Start()
	p.Stop()
	p.Stop()
}

func TestPlayerRestartBeginsAtFirstItem(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Swap(timingsFor(1, 1, 1))
	p.Start()
	clock.Advance(1100 * time.Millisecond) // index 1 on screen

	p.Stop()
	p.Start()

	got := rec.seen()
	assert.Equal(t, 0, got[len(got)-1], "restart begins at the first item")
}

func TestPlayerSwapAppliesAtNextTickBoundary(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Swap(timingsFor(2, 2))
	p.Start()

	// Mid-item swap does not interrupt the item on screen.
	clock.Advance(time.Second)
	p.Swap(timingsFor(5, 5, 5))
	assert.Equal(t, []int{0}, rec.seen())

	// At the boundary the new list takes over from its first item.
	clock.Advance(1100 * time.Millisecond)
	assert.Equal(t, []int{0, 0}, rec.seen())

	// The new durations govern scheduling from here on.
	clock.Advance(2 * time.Second)
	assert.Equal(t, []int{0, 0}, rec.seen())
	clock.Advance(3100 * time.Millisecond)
	assert.Equal(t, []int{0, 0, 1}, rec.seen())
}

func TestPlayerSwapWhileIdleDoesNotWake(t *testing.T) {
	clock := &fakeClock{}
	rec := &tickRecorder{}
	p := NewPlayer(clock, rec.record)
	p.Start() // empty list, idles

	p.Swap(timingsFor(1))
	clock.Advance(time.Minute)
	assert.Empty(t, rec.seen())

	p.Start()
	assert.Equal(t, []int{0}, rec.seen())
	assert.True(t, p.Active())
}
