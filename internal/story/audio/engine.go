package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

type EngineType string

const (
	EngineTypeMock    EngineType = "mock"
	EngineTypeBackend EngineType = "backend"
	EngineTypeESpeak  EngineType = "espeak"
	EngineTypeGoogle  EngineType = "google"
	EngineTypeAuto    EngineType = "auto" // google when credentials exist, backend otherwise
)

func (e EngineType) String() string {
	return string(e)
}

type OutputType string

const (
	OutputSpeaker OutputType = "speaker"
	OutputMock    OutputType = "mock"
)

type Config struct {
	Engine   string
	Output   string
	Speed    float64
	Volume   float64
	CacheTTL time.Duration
}

// NewSynthesizer builds the synthesizer selected by cfg.Engine. Clips are
// cached for cfg.CacheTTL unless the engine is the mock.
func NewSynthesizer(ctx context.Context, cfg Config, src AudioSource) (Synthesizer, error) {
	engine := EngineType(cfg.Engine)
	if engine == "" || engine == EngineTypeAuto {
		engine = bestEngine()
	}

	var synth Synthesizer
	switch engine {
	case EngineTypeMock:
		return MockSynthesizer{}, nil

	case EngineTypeBackend:
		synth = NewBackendSynthesizer(src)

	case EngineTypeESpeak:
		e, err := newESpeakSynthesizer(cfg)
		if err != nil {
			return nil, err
		}
		synth = e

	case EngineTypeGoogle:
		g, err := newGoogleSynthesizer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		synth = g

	default:
		return nil, fmt.Errorf("unsupported audio engine: %s", cfg.Engine)
	}

	if cfg.CacheTTL > 0 {
		return NewCachedSynthesizer(synth, cfg.CacheTTL), nil
	}
	return synth, nil
}

// NewOutput builds the playback device selected by cfg.Output.
func NewOutput(cfg Config, w io.Writer) (Output, error) {
	switch OutputType(cfg.Output) {
	case "", OutputSpeaker:
		return NewSpeakerSink(cfg.Volume), nil
	case OutputMock:
		return NewMockSink(w, defaultMockDelay), nil
	default:
		return nil, fmt.Errorf("unsupported audio output: %s", cfg.Output)
	}
}

// AvailableEngines lists the engines usable on this machine.
func AvailableEngines() []EngineType {
	engines := []EngineType{EngineTypeBackend, EngineTypeMock}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogle)
	}
	return engines
}

func bestEngine() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogle
	}
	return EngineTypeBackend
}

func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}
