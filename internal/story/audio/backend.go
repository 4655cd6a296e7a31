package audio

import (
	"context"
	"strings"

	"onceupon/internal/domain/voice"
)

// AudioSource is the part of the story backend that serves narration.
type AudioSource interface {
	Audio(ctx context.Context, text string, v voice.Voice) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// BackendSynthesizer asks the story server for narration and downloads the
// reference it returns.
type BackendSynthesizer struct {
	src AudioSource
}

func NewBackendSynthesizer(src AudioSource) *BackendSynthesizer {
	return &BackendSynthesizer{src: src}
}

func (b *BackendSynthesizer) Name() string {
	return EngineTypeBackend.String()
}

func (b *BackendSynthesizer) Synthesize(ctx context.Context, text string, v voice.Voice) (Clip, error) {
	ref, err := b.src.Audio(ctx, text, v)
	if err != nil {
		return Clip{}, err
	}
	return b.Resolve(ctx, ref)
}

// Resolve accepts data: URIs as well as absolute or relative URLs.
func (b *BackendSynthesizer) Resolve(ctx context.Context, ref string) (Clip, error) {
	if strings.HasPrefix(ref, "data:") {
		return DecodeDataURI(ref)
	}
	data, err := b.src.Fetch(ctx, ref)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Data: data, Format: DetectFormat(data)}, nil
}
