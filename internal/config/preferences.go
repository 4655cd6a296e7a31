package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"onceupon/internal/domain/voice"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const voiceKey = "voice"

// Preferences persists the voice choice between sessions. It is the only
// state the client keeps on disk.
type Preferences struct {
	mu   sync.Mutex
	path string
	v    *viper.Viper
}

// DefaultPreferencesPath is $HOME/.onceupon/preferences.yaml.
func DefaultPreferencesPath() string {
	return filepath.Join(Dir(), "preferences.yaml")
}

// OpenPreferences reads the preferences file at path. A missing file is not
// an error.
func OpenPreferences(path string) (*Preferences, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(voiceKey, voice.Default.String())

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read preferences %s: %w", path, err)
		}
	}

	return &Preferences{path: path, v: v}, nil
}

// Voice returns the stored voice, or the default when none or an unknown
// one is stored.
func (p *Preferences) Voice() voice.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := p.v.GetString(voiceKey)
	v, err := voice.Parse(stored)
	if err != nil {
		logrus.WithField("voice", stored).Warn("Ignoring unknown stored voice")
		return voice.Default
	}
	return v
}

// SaveVoice stores v and writes the file.
func (p *Preferences) SaveVoice(v voice.Voice) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %q", voice.ErrUnknown, v)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	p.v.Set(voiceKey, v.String())
	if err := p.v.WriteConfigAs(p.path); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

func (p *Preferences) Path() string {
	return p.path
}
