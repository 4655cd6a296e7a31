// Package tick abstracts the repeating timers behind the reveal effect and
// the image poller so both can be driven step by step.
package tick

import (
	"sync"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Factory creates a ticker firing every d.
type Factory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Real is the Factory backed by time.NewTicker.
func Real(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Manual is a Ticker that only fires when Tick is called.
type Manual struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func NewManual() *Manual {
	return &Manual{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *Manual) C() <-chan time.Time { return m.ch }

func (m *Manual) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// Tick delivers one tick and blocks until it is received. It returns false
// if the ticker was stopped first.
func (m *Manual) Tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-m.stopped:
		return false
	}
}

// Stopped is closed once Stop has been called.
func (m *Manual) Stopped() <-chan struct{} { return m.stopped }

// ManualFactory hands out Manual tickers in creation order.
type ManualFactory struct {
	created chan *Manual
}

func NewManualFactory() *ManualFactory {
	return &ManualFactory{created: make(chan *Manual, 64)}
}

func (f *ManualFactory) Factory(time.Duration) Ticker {
	m := NewManual()
	f.created <- m
	return m
}

// Next waits for the next ticker created through the factory.
func (f *ManualFactory) Next(timeout time.Duration) (*Manual, bool) {
	select {
	case m := <-f.created:
		return m, true
	case <-time.After(timeout):
		return nil, false
	}
}
