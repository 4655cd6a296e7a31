package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"onceupon/internal/backend"
	"onceupon/internal/cli/scheme/colours"
	"onceupon/internal/config"
	"onceupon/internal/domain/gallery"
	"onceupon/internal/domain/voice"
	"onceupon/internal/story/audio"
	"onceupon/internal/story/nest"
	"onceupon/internal/story/poller"
	"onceupon/internal/story/session"
	"onceupon/internal/story/typewriter"
	"onceupon/internal/words"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	config.Init()

	closeLog, err := config.ConfigureLogging(config.Load())
	if err != nil {
		colours.Error.Printf("❌ Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	rootCmd := &cobra.Command{
		Use:   "onceupon",
		Short: "📖 Tell a story together, one word at a time",
		Long: `
┌─────────────────────────────────────┐
│  📖 Once upon a time... ✨          │
│  You bring the words,               │
│  the storyteller brings the tale.   │
└─────────────────────────────────────┘

Type a word and watch it woven into the story, hear it narrated and
collect the illustrations drawn along the way. 🌙
		`,
		SilenceUsage: true,
		RunE:         play,
	}

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "🎭 Start an interactive story",
		Long:  "Start a story session in the terminal",
		RunE:  play,
	}

	wordCmd := &cobra.Command{
		Use:   "word",
		Short: "🎲 Suggest a random word",
		Long:  "Ask the word service for a word, falling back to the built-in list",
		Run:   pickWord,
	}

	voiceCmd := &cobra.Command{
		Use:   "voice [name]",
		Short: "🎤 Show or change the narrator",
		Long:  "Print the saved narrator voice, or save a new one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  setVoice,
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "📋 List narrator voices",
		Run:   listVoices,
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show settings",
		Long:  "Print the effective configuration and where it comes from",
		Run:   showSettings,
	}

	for _, cmd := range []*cobra.Command{rootCmd, playCmd} {
		cmd.Flags().StringP("voice", "v", "", "Narrator for this session (man, woman, passionate, witch)")
		cmd.Flags().StringP("backend", "b", "", "Story server URL")
		cmd.Flags().BoolP("mute", "m", false, "Disable narration and chimes")
	}

	rootCmd.AddCommand(playCmd, wordCmd, voiceCmd, voicesCmd, settingsCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

func play(cmd *cobra.Command, args []string) error {
	s := config.Load()

	if url, _ := cmd.Flags().GetString("backend"); url != "" {
		s.BackendURL = url
	}
	if mute, _ := cmd.Flags().GetBool("mute"); mute {
		s.AudioAutoplay = false
		s.AudioChime = false
	}

	prefs, err := config.OpenPreferences(config.DefaultPreferencesPath())
	if err != nil {
		return err
	}

	v := prefs.Voice()
	override := s.Voice
	if flag, _ := cmd.Flags().GetString("voice"); flag != "" {
		override = flag
	}
	if override != "" {
		if v, err = voice.Parse(override); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Sweet dreams! 🌙"))
			cancel()
		case <-ctx.Done():
		}
	}()

	client := backend.NewClient(s.BackendURL, s.BackendTimeout)

	audioCfg := audio.Config{
		Engine:   s.AudioEngine,
		Output:   s.AudioOutput,
		Speed:    s.AudioSpeed,
		Volume:   s.AudioVolume,
		CacheTTL: s.AudioCacheTTL,
	}
	out, err := audio.NewOutput(audioCfg, color.Output)
	if err != nil {
		return err
	}
	synth, err := audio.NewSynthesizer(ctx, audioCfg, client)
	if err != nil {
		logrus.WithError(err).WithField("engine", s.AudioEngine).Warn("Falling back to backend narration")
		synth = audio.NewBackendSynthesizer(client)
	}
	if closer, ok := synth.(io.Closer); ok {
		defer closer.Close()
	}
	player := audio.NewPlayer(synth, audio.NewBackendSynthesizer(client), out)

	tw := typewriter.New(s.TypewriterSpeed)
	images := gallery.New()
	poll := poller.New(client, images, poller.Config{
		Interval:    s.PollInterval,
		MaxAttempts: s.PollMaxAttempts,
	})

	ctrl := session.New(ctx, session.Deps{
		Story:      client,
		Typewriter: tw,
		Poller:     poll,
		Narrator:   player,
		Chime:      out,
		Prefs:      prefs,
		Words: words.New(words.Config{
			URL:     s.WordsURL,
			Timeout: s.WordsTimeout,
			Rate:    s.WordsRate,
		}),
	}, session.Options{
		Voice:    v,
		Autoplay: s.AudioAutoplay,
		Chime:    s.AudioChime,
	})
	tw.OnComplete(ctrl.OnTypewriterComplete)

	logrus.WithFields(logrus.Fields{
		"backend": client.BaseURL(),
		"engine":  synth.Name(),
		"voice":   v,
	}).Info("Starting story session")

	app := nest.New(ctrl, tw, nest.Config{
		In:      os.Stdin,
		Out:     color.Output,
		Gallery: images,
		Images:  poll,
		Stop:    []nest.Stopper{poll, tw, player},
	})
	return app.Run(ctx)
}

func pickWord(cmd *cobra.Command, args []string) {
	s := config.Load()
	picker := words.New(words.Config{
		URL:     s.WordsURL,
		Timeout: s.WordsTimeout,
		Rate:    s.WordsRate,
	})

	word, fallback := picker.Pick(cmd.Context())
	colours.Word.Println(word)
	if fallback {
		colours.Info.Println("💡 The word service did not answer, this one is from the built-in list")
	}
}

func setVoice(cmd *cobra.Command, args []string) error {
	prefs, err := config.OpenPreferences(config.DefaultPreferencesPath())
	if err != nil {
		return err
	}

	if len(args) == 0 {
		colours.Info.Printf("🎤 Current voice: %s\n", prefs.Voice())
		return nil
	}

	v, err := voice.Parse(args[0])
	if err != nil {
		return err
	}
	if err := prefs.SaveVoice(v); err != nil {
		return err
	}
	colours.Success.Printf("✅ The %s will tell your stories (saved to %s)\n", v, prefs.Path())
	return nil
}

func listVoices(cmd *cobra.Command, args []string) {
	current := voice.Default
	if prefs, err := config.OpenPreferences(config.DefaultPreferencesPath()); err == nil {
		current = prefs.Voice()
	}

	colours.Title.Println("🎤 Voices")
	for _, v := range voice.All() {
		if v == current {
			colours.Success.Printf("  • %s (current)\n", v)
			continue
		}
		fmt.Printf("  • %s\n", v)
	}

	fmt.Println()
	colours.Title.Println("🔊 Narration engines on this machine")
	for _, e := range audio.AvailableEngines() {
		fmt.Printf("  • %s\n", e)
	}
}

func showSettings(cmd *cobra.Command, args []string) {
	s := config.Load()

	fmt.Println()
	colours.Title.Println("⚙️ Settings ⚙️")
	fmt.Println()

	if file := viper.ConfigFileUsed(); file != "" {
		colours.Info.Printf("📁 Config file: %s\n", file)
	} else {
		colours.Info.Println("📁 Config file: none, using defaults")
	}
	colours.Info.Printf("📁 Preferences: %s\n", config.DefaultPreferencesPath())
	fmt.Println()

	colours.Prompt.Println("🌐 Story server:")
	fmt.Printf("  • URL: %s\n", s.BackendURL)
	fmt.Printf("  • Timeout: %s\n", s.BackendTimeout)
	fmt.Printf("  • Word service: %s (timeout %s)\n", s.WordsURL, s.WordsTimeout)
	fmt.Println()

	colours.Prompt.Println("🎤 Narration:")
	fmt.Printf("  • Engine: %s\n", s.AudioEngine)
	fmt.Printf("  • Output: %s\n", s.AudioOutput)
	fmt.Printf("  • Autoplay: %t | Chime: %t\n", s.AudioAutoplay, s.AudioChime)
	fmt.Printf("  • Speed: %.1fx | Volume: %+.1f\n", s.AudioSpeed, s.AudioVolume)
	fmt.Println()

	colours.Prompt.Println("✨ Story:")
	fmt.Printf("  • Typewriter speed: %s per character\n", s.TypewriterSpeed)
	fmt.Printf("  • Illustrations: %d attempts every %s\n", s.PollMaxAttempts, s.PollInterval)
}
