package audio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"onceupon/internal/domain/voice"

	"github.com/fatih/color"
)

const defaultMockDelay = 2 * time.Second

// MockSynthesizer returns the text itself as a clip. Pair it with MockSink.
type MockSynthesizer struct{}

func (MockSynthesizer) Name() string {
	return EngineTypeMock.String()
}

func (MockSynthesizer) Synthesize(_ context.Context, text string, _ voice.Voice) (Clip, error) {
	return Clip{Data: []byte(text), Format: FormatText}, nil
}

// MockSink prints what it would play and waits for a fixed delay.
type MockSink struct {
	w     io.Writer
	delay time.Duration
}

func NewMockSink(w io.Writer, delay time.Duration) *MockSink {
	return &MockSink{w: w, delay: delay}
}

func (m *MockSink) Play(ctx context.Context, clip Clip) error {
	label := fmt.Sprintf("%d bytes of %s", len(clip.Data), clip.Format)
	if clip.Format == FormatText {
		words := len(strings.Fields(string(clip.Data)))
		label = fmt.Sprintf("%d words", words)
	}
	fmt.Fprintln(m.w, color.YellowString("🔊 Reading aloud... (simulated, %s)", label))

	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockSink) Chime(context.Context) error {
	fmt.Fprintln(m.w, color.YellowString("🔔"))
	return nil
}
