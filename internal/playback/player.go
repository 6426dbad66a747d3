package playback

import (
	"sync"
	"time"
)

// Clock abstracts timer scheduling so tests can drive the loop with a fake
// clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock schedules on the runtime's wall clock.
func RealClock() Clock { return realClock{} }

// Player is the single-threaded playback loop. On each tick it notifies the
// subscriber with the current item index, then schedules the next tick
// after that item's effective duration, wrapping modulo the list length.
// Timing swaps take effect at the next tick boundary, never mid-item.
type Player struct {
	clock  Clock
	onTick func(index int)

	mu      sync.Mutex
	timings []ItemTiming
	pending []ItemTiming
	timer   Timer
	running bool
	gen     int
	index   int

	// notifying tracks an in-flight onTick delivery so Stop can wait for
	// it; the subscriber fires outside p.mu.
	notifying sync.WaitGroup
}

// NewPlayer constructs a stopped player. onTick is invoked once per tick
// with the index of the item now on screen.
func NewPlayer(clock Clock, onTick func(index int)) *Player {
	if clock == nil {
		clock = RealClock()
	}
	return &Player{clock: clock, onTick: onTick}
}

// Start begins the loop from index 0, restarting if already running. An
// empty timing list leaves the player idle: nothing is notified and nothing
// is scheduled until the next Start.
func (p *Player) Start() {
	p.mu.Lock()
	p.cancelLocked()
	p.running = true
	p.gen++
	p.index = 0
	if p.pending != nil {
		p.timings = p.pending
		p.pending = nil
	}
	gen := p.gen
	p.mu.Unlock()

	p.notifying.Wait()
	p.tick(gen)
}

// Stop cancels any pending tick and halts notification, waiting out any
// tick callback already in flight. Safe to call at any time, repeatedly; no
// tick callback fires after Stop returns. Must not be called from inside
// the tick callback itself.
func (p *Player) Stop() {
	p.mu.Lock()
	p.running = false
	p.gen++
	p.cancelLocked()
	p.mu.Unlock()

	p.notifying.Wait()
}

// Swap replaces the timing list effective at the next tick boundary. A
// mid-item manifest update therefore never cuts the current item short. If
// the player is idle (stopped, or started against an empty list), Swap
// alone does not wake it; callers restart explicitly.
func (p *Player) Swap(timings []ItemTiming) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = timings
}

// Active reports whether a tick is currently scheduled.
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

func (p *Player) tick(gen int) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	if p.pending != nil {
		p.timings = p.pending
		p.pending = nil
		p.index = 0
	}
	if len(p.timings) == 0 {
		p.mu.Unlock()
		return
	}
	idx := p.index
	duration := time.Duration(p.timings[idx].EffectiveDurationSeconds * float64(time.Second))
	if duration <= 0 {
		// A zero-delay reschedule would spin the timer.
		duration = time.Second
	}
	p.index = (idx + 1) % len(p.timings)
	p.timer = p.clock.AfterFunc(duration, func() { p.tick(gen) })
	onTick := p.onTick
	p.notifying.Add(1)
	p.mu.Unlock()

	if onTick != nil {
		onTick(idx)
	}
	p.notifying.Done()
}

func (p *Player) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
