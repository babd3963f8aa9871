// Package clock abstracts wall time so playback and frame pacing can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock tells time and makes tickers
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C. Ticks a slow receiver misses are coalesced.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the system clock
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced clock. Advance hands every live ticker one
// tick and blocks until the tick is taken, so a receiver has finished with
// tick n by the time Advance for tick n+1 returns.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a fake clock starting at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time), done: make(chan struct{})}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

// Advance moves the clock forward by d and ticks every running ticker
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	tickers := append([]*fakeTicker(nil), f.tickers...)
	f.mu.Unlock()

	for _, t := range tickers {
		select {
		case t.c <- now:
		case <-t.done:
		}
	}
}

// Tickers returns how many tickers were created and not stopped
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		select {
		case <-t.done:
		default:
			n++
		}
	}
	return n
}

type fakeTicker struct {
	c    chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}
