// Package poller asks the backend for an illustration of a sentence until
// one is ready or the attempt budget runs out.
package poller

import (
	"context"
	"sync"
	"time"

	"onceupon/internal/story/tick"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval    = 1500 * time.Millisecond
	DefaultMaxAttempts = 45
)

// ImageFetcher reports whether an image for sentence is ready.
type ImageFetcher interface {
	Image(ctx context.Context, sentence string) (ref string, ready bool, err error)
}

// Sink receives images as they become ready.
type Sink interface {
	Append(ref string) int
}

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Ticker      tick.Factory
}

// Poller runs at most one poll session at a time. Starting a session
// cancels the previous one.
type Poller struct {
	fetcher   ImageFetcher
	sink      Sink
	interval  time.Duration
	max       int
	newTicker tick.Factory
	log       *logrus.Entry

	mu      sync.Mutex
	current *Session
	onImage []func(ref string, index int)
}

// Session tracks one sentence. Its attempt counter belongs to it alone.
type Session struct {
	ID       string
	Sentence string

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	attempts int
	found    bool
}

func New(fetcher ImageFetcher, sink Sink, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Ticker == nil {
		cfg.Ticker = tick.Real
	}
	return &Poller{
		fetcher:   fetcher,
		sink:      sink,
		interval:  cfg.Interval,
		max:       cfg.MaxAttempts,
		newTicker: cfg.Ticker,
		log:       logrus.WithField("component", "poller"),
	}
}

// OnImage registers fn to be called after an image is appended to the sink.
func (p *Poller) OnImage(fn func(ref string, index int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onImage = append(p.onImage, fn)
}

// Start begins polling for sentence and supersedes any running session.
func (p *Poller) Start(ctx context.Context, sentence string) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:       uuid.NewString(),
		Sentence: sentence,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	p.mu.Lock()
	if prev := p.current; prev != nil {
		prev.cancel()
		p.log.WithField("session", prev.ID).Debug("Superseded image poll")
	}
	p.current = s
	p.mu.Unlock()

	go p.run(sctx, s)
	return s
}

// Stop cancels the running session, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.cancel()
		p.current = nil
	}
}

// Current returns the active session or nil.
func (p *Poller) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Poller) run(ctx context.Context, s *Session) {
	defer close(s.done)
	defer s.cancel()

	log := p.log.WithFields(logrus.Fields{
		"session":  s.ID,
		"sentence": s.Sentence,
	})

	var t tick.Ticker
	for attempt := 1; attempt <= p.max; attempt++ {
		if attempt > 1 {
			if t == nil {
				t = p.newTicker(p.interval)
				defer t.Stop()
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C():
			}
		}
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.attempts = attempt
		s.mu.Unlock()

		ref, ready, err := p.fetcher.Image(ctx, s.Sentence)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Debug("Image request failed, retrying")
			continue
		}
		if !ready {
			continue
		}

		if p.deliver(ctx, s, ref) {
			log.WithField("attempt", attempt).Info("Illustration ready")
		}
		return
	}

	p.mu.Lock()
	if p.current == s {
		p.current = nil
	}
	p.mu.Unlock()
	log.WithField("attempts", p.max).Info("Gave up waiting for illustration")
}

func (p *Poller) deliver(ctx context.Context, s *Session, ref string) bool {
	p.mu.Lock()
	if p.current != s || ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	index := p.sink.Append(ref)
	s.mu.Lock()
	s.found = true
	s.mu.Unlock()
	p.current = nil
	listeners := make([]func(string, int), len(p.onImage))
	copy(listeners, p.onImage)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(ref, index)
	}
	return true
}

// Done is closed when the session stops for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Found reports whether the session delivered an image.
func (s *Session) Found() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.found
}
