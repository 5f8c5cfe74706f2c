package clock

import (
	"sync"
	"time"
)

// Fake is a Clock for tests. In auto mode every timer fires as soon as it is
// requested and the fake time jumps forward by the requested delay. In manual
// mode timers fire only when Advance moves time past their deadline.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	auto    bool
	pending []fakeTimer
	waits   []time.Duration
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

type stoppableTimer struct {
	clock *Fake
	ch    chan time.Time
}

func (t *stoppableTimer) C() <-chan time.Time { return t.ch }

func (t *stoppableTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p.ch == t.ch {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}
	return false
}

// NewFake returns a manual fake clock starting at start.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// NewAutoFake returns a fake clock whose timers fire immediately.
func NewAutoFake(start time.Time) *Fake {
	f := NewFake(start)
	f.auto = true
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	return f.schedule(d)
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	return &stoppableTimer{clock: f, ch: f.schedule(d)}
}

func (f *Fake) schedule(d time.Duration) chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.waits = append(f.waits, d)
	ch := make(chan time.Time, 1)
	if f.auto {
		f.now = f.now.Add(d)
		ch <- f.now
		return ch
	}
	f.pending = append(f.pending, fakeTimer{deadline: f.now.Add(d), ch: ch})
	f.cond.Broadcast()
	return ch
}

// Advance moves time forward and fires every timer that is now due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	kept := f.pending[:0]
	for _, t := range f.pending {
		if !t.deadline.After(f.now) {
			t.ch <- f.now
			continue
		}
		kept = append(kept, t)
	}
	f.pending = kept
}

// BlockUntil waits until at least n timers are pending.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.pending) < n {
		f.cond.Wait()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Waits returns every delay requested so far, in order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}
