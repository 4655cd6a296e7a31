package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	appName   = "onceupon"
	envPrefix = "ONCEUPON"
)

// Settings is the resolved configuration for one run.
type Settings struct {
	BackendURL     string
	BackendTimeout time.Duration

	WordsURL     string
	WordsTimeout time.Duration
	WordsRate    time.Duration

	TypewriterSpeed time.Duration

	PollInterval    time.Duration
	PollMaxAttempts int

	AudioEngine   string
	AudioOutput   string
	AudioAutoplay bool
	AudioChime    bool
	AudioSpeed    float64
	AudioVolume   float64
	AudioCacheTTL time.Duration

	Voice string

	LogLevel string
	LogFile  string
}

func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:5000")
	viper.SetDefault("backend.timeout", 2*time.Minute)

	viper.SetDefault("words.url", "https://random-word-api.herokuapp.com")
	viper.SetDefault("words.timeout", 5*time.Second)
	viper.SetDefault("words.rate", time.Second)

	viper.SetDefault("typewriter.speed", 25*time.Millisecond)

	viper.SetDefault("poller.interval", 1500*time.Millisecond)
	viper.SetDefault("poller.max_attempts", 45)

	viper.SetDefault("audio.engine", "backend")
	viper.SetDefault("audio.output", "speaker")
	viper.SetDefault("audio.autoplay", true)
	viper.SetDefault("audio.chime", true)
	viper.SetDefault("audio.speed", 1.0)
	viper.SetDefault("audio.volume", 0.0)
	viper.SetDefault("audio.cache_ttl", 30*time.Minute)

	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.file", "")
}

// Init loads .env, sets defaults and reads the optional config file from
// $HOME/.onceupon or the working directory.
func Init() {
	// .env is optional
	_ = godotenv.Load()

	setDefaults()

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join("$HOME", "."+appName))
	viper.AddConfigPath(".")

	// ONCEUPON_BACKEND_URL overrides backend.url
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logrus.WithError(err).Warn("Failed to read config file")
		}
	}
}

// Load resolves the current viper state into Settings.
func Load() Settings {
	return Settings{
		BackendURL:      viper.GetString("backend.url"),
		BackendTimeout:  viper.GetDuration("backend.timeout"),
		WordsURL:        viper.GetString("words.url"),
		WordsTimeout:    viper.GetDuration("words.timeout"),
		WordsRate:       viper.GetDuration("words.rate"),
		TypewriterSpeed: viper.GetDuration("typewriter.speed"),
		PollInterval:    viper.GetDuration("poller.interval"),
		PollMaxAttempts: viper.GetInt("poller.max_attempts"),
		AudioEngine:     viper.GetString("audio.engine"),
		AudioOutput:     viper.GetString("audio.output"),
		AudioAutoplay:   viper.GetBool("audio.autoplay"),
		AudioChime:      viper.GetBool("audio.chime"),
		AudioSpeed:      viper.GetFloat64("audio.speed"),
		AudioVolume:     viper.GetFloat64("audio.volume"),
		AudioCacheTTL:   viper.GetDuration("audio.cache_ttl"),
		Voice:           viper.GetString("voice"),
		LogLevel:        viper.GetString("log.level"),
		LogFile:         viper.GetString("log.file"),
	}
}

// ConfigureLogging applies the log level and, when set, sends diagnostics
// to a file so they stay out of the story on screen. The returned function
// closes the file.
func ConfigureLogging(s Settings) (func(), error) {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)

	if s.LogFile == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.LogFile), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(f)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return func() { f.Close() }, nil
}

// Dir returns the per-user directory holding config and preferences.
func Dir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+appName)
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "."+appName)
	}
	return "." + appName
}
