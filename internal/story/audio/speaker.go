package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// deviceRate is the single rate the speaker is opened with; clips at other
// rates are resampled.
const deviceRate beep.SampleRate = 44100

// SpeakerSink plays clips on the default sound device.
type SpeakerSink struct {
	volume float64

	once    sync.Once
	initErr error
}

// NewSpeakerSink returns a sink with a volume offset in beep's base-2 scale;
// 0 leaves clips unchanged.
func NewSpeakerSink(volume float64) *SpeakerSink {
	return &SpeakerSink{volume: volume}
}

func (s *SpeakerSink) init() error {
	s.once.Do(func() {
		s.initErr = speaker.Init(deviceRate, deviceRate.N(time.Second/10))
	})
	return s.initErr
}

func (s *SpeakerSink) Play(ctx context.Context, clip Clip) error {
	if err := s.init(); err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}

	streamer, format, err := decode(clip)
	if err != nil {
		return err
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != deviceRate {
		src = beep.Resample(4, format.SampleRate, deviceRate, streamer)
	}
	if s.volume != 0 {
		src = &effects.Volume{Streamer: src, Base: 2, Volume: s.volume}
	}
	return s.play(ctx, src)
}

func (s *SpeakerSink) Chime(ctx context.Context) error {
	if err := s.init(); err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	return s.play(ctx, chime(deviceRate))
}

func (s *SpeakerSink) play(ctx context.Context, src beep.Streamer) error {
	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(src, beep.Callback(func() {
		close(done)
	}))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

func decode(clip Clip) (beep.StreamSeekCloser, beep.Format, error) {
	switch clip.Format {
	case FormatMP3:
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(clip.Data)))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode MP3: %w", err)
		}
		return s, f, nil
	case FormatWAV:
		s, f, err := wav.Decode(bytes.NewReader(clip.Data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode WAV: %w", err)
		}
		return s, f, nil
	default:
		return nil, beep.Format{}, fmt.Errorf("cannot play %s clips on a speaker", clip.Format)
	}
}
