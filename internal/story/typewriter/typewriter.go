// Package typewriter reveals text one character per tick.
//
// An Engine is either Idle or Revealing. Reveal moves it to Revealing; the
// only transition back that emits an event is completion, which fires the
// registered completion listeners exactly once per reveal. Superseding or
// stopping a reveal returns the engine to Idle silently.
package typewriter

import (
	"sync"
	"time"

	"onceupon/internal/story/tick"
)

const DefaultInterval = 25 * time.Millisecond

type Option func(*Engine)

// WithTicker replaces the tick source, mainly for tests.
func WithTicker(f tick.Factory) Option {
	return func(e *Engine) {
		e.newTicker = f
	}
}

type Engine struct {
	interval  time.Duration
	newTicker tick.Factory

	mu        sync.Mutex
	gen       uint64
	target    []rune
	shown     int
	revealing bool
	quit      chan struct{}

	// emitMu orders update notifications so a superseded reveal cannot
	// write after its successor has started.
	emitMu     sync.Mutex
	onUpdate   []func(partial string)
	onComplete []func()
}

func New(interval time.Duration, opts ...Option) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	e := &Engine{
		interval:  interval,
		newTicker: tick.Real,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnUpdate registers fn to receive the partial text after every tick and an
// empty string when a reveal starts. fn must not call Reveal or Stop.
func (e *Engine) OnUpdate(fn func(partial string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = append(e.onUpdate, fn)
}

// OnComplete registers fn for the completion event.
func (e *Engine) OnComplete(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = append(e.onComplete, fn)
}

// Reveal cancels any running reveal and starts revealing text. The returned
// channel is closed when this reveal completes; it stays open if the reveal
// is superseded or stopped.
func (e *Engine) Reveal(text string) <-chan struct{} {
	done := make(chan struct{})

	e.mu.Lock()
	e.cancelLocked()
	e.gen++
	gen := e.gen
	e.target = []rune(text)
	e.shown = 0

	if len(e.target) == 0 {
		e.revealing = false
		updates, completes := e.listenersLocked()
		e.mu.Unlock()

		e.emit(gen, updates, "")
		close(done)
		e.complete(gen, completes)
		return done
	}

	e.revealing = true
	quit := make(chan struct{})
	e.quit = quit
	t := e.newTicker(e.interval)
	updates, _ := e.listenersLocked()
	e.mu.Unlock()

	e.emit(gen, updates, "")
	go e.run(gen, t, quit, done)
	return done
}

// Stop abandons the running reveal without firing completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.gen++
	e.revealing = false
}

// Text returns the part of the target revealed so far.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.target[:e.shown])
}

func (e *Engine) Revealing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revealing
}

func (e *Engine) run(gen uint64, t tick.Ticker, quit <-chan struct{}, done chan struct{}) {
	defer t.Stop()

	for {
		select {
		case <-quit:
			return
		case <-t.C():
		}

		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return
		}
		e.shown++
		partial := string(e.target[:e.shown])
		finished := e.shown == len(e.target)
		if finished {
			e.revealing = false
			e.quit = nil
		}
		updates, completes := e.listenersLocked()
		e.mu.Unlock()

		e.emit(gen, updates, partial)

		if finished {
			close(done)
			e.complete(gen, completes)
			return
		}
	}
}

func (e *Engine) emit(gen uint64, listeners []func(string), partial string) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	current := e.gen == gen
	e.mu.Unlock()
	if !current {
		return
	}
	for _, fn := range listeners {
		fn(partial)
	}
}

// complete fires completion listeners for as long as gen is the current
// reveal. A Reveal or Stop issued meanwhile silences the rest.
func (e *Engine) complete(gen uint64, listeners []func()) {
	for _, fn := range listeners {
		e.mu.Lock()
		current := e.gen == gen
		e.mu.Unlock()
		if !current {
			return
		}
		fn()
	}
}

func (e *Engine) cancelLocked() {
	if e.quit != nil {
		close(e.quit)
		e.quit = nil
	}
}

func (e *Engine) listenersLocked() ([]func(string), []func()) {
	updates := make([]func(string), len(e.onUpdate))
	copy(updates, e.onUpdate)
	completes := make([]func(), len(e.onComplete))
	copy(completes, e.onComplete)
	return updates, completes
}
