// Package audio narrates story text: synthesizers turn text into clips,
// sinks play clips, and the Player makes sure only one narration runs.
package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"onceupon/internal/domain/voice"
)

type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatText Format = "text"
)

// Clip is encoded audio ready for a Sink.
type Clip struct {
	Data   []byte
	Format Format
}

// Synthesizer produces narration for text in the given voice.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, v voice.Voice) (Clip, error)
}

// Resolver turns a playable reference handed out by the backend into a clip.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Clip, error)
}

// Sink plays a clip and blocks until playback ends or ctx is done.
type Sink interface {
	Play(ctx context.Context, clip Clip) error
}

// Chimer plays the short notification sound.
type Chimer interface {
	Chime(ctx context.Context) error
}

// Output is a device that can both narrate and chime.
type Output interface {
	Sink
	Chimer
}

var ErrBusy = errors.New("audio already playing")

// DetectFormat sniffs WAV by its RIFF header and assumes MP3 otherwise.
func DetectFormat(data []byte) Format {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	return FormatMP3
}

// DecodeDataURI decodes a base64 data: URI into a clip.
func DecodeDataURI(ref string) (Clip, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return Clip{}, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Clip{}, fmt.Errorf("malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return Clip{}, fmt.Errorf("unsupported data uri encoding %q", meta)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode data uri: %w", err)
	}

	mime := strings.TrimSuffix(meta, ";base64")
	switch mime {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return Clip{Data: data, Format: FormatWAV}, nil
	case "audio/mpeg", "audio/mp3":
		return Clip{Data: data, Format: FormatMP3}, nil
	default:
		return Clip{Data: data, Format: DetectFormat(data)}, nil
	}
}
