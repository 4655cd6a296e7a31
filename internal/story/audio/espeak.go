package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"onceupon/internal/domain/voice"
)

// espeakVoice maps a persona onto an eSpeak variant and a speed factor.
type espeakVoice struct {
	variant string
	rate    float64
}

var espeakVoices = map[voice.Voice]espeakVoice{
	voice.Man:        {variant: "en+m3", rate: 1.0},
	voice.Woman:      {variant: "en+f3", rate: 1.0},
	voice.Passionate: {variant: "en+m7", rate: 1.15},
	voice.Witch:      {variant: "en+croak", rate: 0.85},
}

// ESpeakSynthesizer renders WAV narration with a local eSpeak/eSpeak-NG.
type ESpeakSynthesizer struct {
	path   string
	speed  float64
	volume float64
}

func newESpeakSynthesizer(cfg Config) (*ESpeakSynthesizer, error) {
	path, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}

	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return &ESpeakSynthesizer{path: path, speed: speed, volume: 1.0}, nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

func (e *ESpeakSynthesizer) Name() string {
	return EngineTypeESpeak.String()
}

func (e *ESpeakSynthesizer) Synthesize(ctx context.Context, text string, v voice.Voice) (Clip, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, e.args(text, v)...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Clip{}, fmt.Errorf("eSpeak failed: %w: %s", err, stderr.String())
	}
	return Clip{Data: out, Format: FormatWAV}, nil
}

func (e *ESpeakSynthesizer) args(text string, v voice.Voice) []string {
	ev, ok := espeakVoices[v]
	if !ok {
		ev = espeakVoices[voice.Default]
	}

	// words per minute, eSpeak default is 175
	speed := int(175 * e.speed * ev.rate)
	// amplitude 0-200, default 100
	volume := int(100 * e.volume)

	return []string{
		"-v", ev.variant,
		"-s", strconv.Itoa(speed),
		"-a", strconv.Itoa(volume),
		"--stdout",
		text,
	}
}
