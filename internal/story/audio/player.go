package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"onceupon/internal/domain/voice"

	"github.com/sirupsen/logrus"
)

// Player plays one narration at a time. Requests made while a narration is
// running are dropped with ErrBusy.
type Player struct {
	synth    Synthesizer
	resolver Resolver
	sink     Sink

	mu      sync.Mutex
	playing bool
	cancel  context.CancelFunc
}

func NewPlayer(synth Synthesizer, resolver Resolver, sink Sink) *Player {
	return &Player{
		synth:    synth,
		resolver: resolver,
		sink:     sink,
	}
}

// Play synthesizes text and plays it.
func (p *Player) Play(ctx context.Context, text string, v voice.Voice) error {
	ctx, ok := p.begin(ctx)
	if !ok {
		return ErrBusy
	}
	defer p.end()

	clip, err := p.synth.Synthesize(ctx, text, v)
	if err != nil {
		return fmt.Errorf("failed to synthesize narration: %w", err)
	}
	if err := p.sink.Play(ctx, clip); err != nil {
		return fmt.Errorf("failed to play narration: %w", err)
	}
	return nil
}

// PlayRef plays a reference the backend already produced.
func (p *Player) PlayRef(ctx context.Context, ref string) error {
	if p.resolver == nil {
		return errors.New("no resolver for audio references")
	}
	ctx, ok := p.begin(ctx)
	if !ok {
		return ErrBusy
	}
	defer p.end()

	clip, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to fetch audio %q: %w", ref, err)
	}
	if err := p.sink.Play(ctx, clip); err != nil {
		return fmt.Errorf("failed to play audio: %w", err)
	}
	return nil
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stop interrupts the running narration.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Player) begin(ctx context.Context) (context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		logrus.Debug("Narration already playing, dropping request")
		return nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	p.playing = true
	p.cancel = cancel
	return ctx, true
}

func (p *Player) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.playing = false
}
