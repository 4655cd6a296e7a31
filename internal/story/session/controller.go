// Package session owns the story conversation and decides when the input,
// the typewriter, narration and the image poller are each active.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"onceupon/internal/backend"
	"onceupon/internal/domain/story"
	"onceupon/internal/domain/voice"
	"onceupon/internal/story/audio"
	"onceupon/internal/story/poller"

	"github.com/sirupsen/logrus"
)

// MaxWordLength matches the length limit of the input box.
const MaxWordLength = 12

var (
	ErrBusy            = errors.New("the story is still being told")
	ErrEmptyWord       = errors.New("word is empty")
	ErrWordTooLong     = fmt.Errorf("word is longer than %d characters", MaxWordLength)
	ErrNothingToReplay = errors.New("nothing to replay yet")
	ErrNoPicker        = errors.New("no word picker configured")
)

type StoryClient interface {
	Story(ctx context.Context, req backend.StoryRequest) (story.Response, error)
}

type Revealer interface {
	Reveal(text string) <-chan struct{}
	Revealing() bool
}

type ImagePoller interface {
	Start(ctx context.Context, sentence string) *poller.Session
	Stop()
}

type Narrator interface {
	Play(ctx context.Context, text string, v voice.Voice) error
	PlayRef(ctx context.Context, ref string) error
	Playing() bool
}

type VoiceStore interface {
	SaveVoice(v voice.Voice) error
}

type WordPicker interface {
	Pick(ctx context.Context) (word string, fallback bool)
}

// Deps are the collaborators of a Controller. Story and Typewriter are
// required; the rest may be nil.
type Deps struct {
	Story      StoryClient
	Typewriter Revealer
	Poller     ImagePoller
	Narrator   Narrator
	Chime      audio.Chimer
	Prefs      VoiceStore
	Words      WordPicker
}

type Options struct {
	Voice    voice.Voice
	Autoplay bool
	Chime    bool
}

// View is a snapshot of the session for rendering.
type View struct {
	State        story.State
	UsedWords    []string
	Voice        voice.Voice
	InputVisible bool
	Generating   bool
	Typing       bool
	PlayingAudio bool
	PendingWord  string
}

// CanSubmit reports whether a new word would be accepted.
func (v View) CanSubmit() bool {
	return v.InputVisible && !v.Generating && !v.Typing
}

type Controller struct {
	deps Deps
	opts Options
	ctx  context.Context
	log  *logrus.Entry
	used *story.UsedWords
	bg   sync.WaitGroup

	mu           sync.Mutex
	state        story.State
	voice        voice.Voice
	inputVisible bool
	generating   bool
	pending      string
	onInput      []func(visible bool)
	onStory      []func(s story.State)
}

// New returns a controller with the input open. ctx bounds background work
// such as narration, chimes and image polling.
func New(ctx context.Context, deps Deps, opts Options) *Controller {
	opts.Voice = voice.OrDefault(string(opts.Voice))
	return &Controller{
		deps:         deps,
		opts:         opts,
		ctx:          ctx,
		log:          logrus.WithField("component", "session"),
		used:         story.NewUsedWords(),
		voice:        opts.Voice,
		inputVisible: true,
	}
}

// OnInput registers fn to be told when the input opens or closes.
func (c *Controller) OnInput(fn func(visible bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInput = append(c.onInput, fn)
}

// OnStory registers fn to receive each new state before its segment is revealed.
func (c *Controller) OnStory(fn func(s story.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStory = append(c.onStory, fn)
}

// Submit continues the story with word.
func (c *Controller) Submit(ctx context.Context, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return ErrEmptyWord
	}
	if utf8.RuneCountInString(word) > MaxWordLength {
		return ErrWordTooLong
	}

	c.mu.Lock()
	if c.generating || !c.inputVisible || c.deps.Typewriter.Revealing() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.generating = true
	req := backend.StoryRequest{Story: c.state.FullText, Word: word, Voice: c.voice}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
	}()

	c.setInputVisible(false, false)

	log := c.log.WithField("word", word)
	resp, err := c.deps.Story.Story(ctx, req)
	if err != nil {
		log.WithError(err).Error("Failed to fetch story")
		c.setInputVisible(true, false)
		return fmt.Errorf("failed to continue the story: %w", err)
	}

	state := resp.State()
	c.mu.Lock()
	c.state = state
	listeners := append([]func(story.State){}, c.onStory...)
	c.mu.Unlock()
	c.used.Add(word)

	log.WithField("segment", state.LatestSegment).Debug("Story continued")

	for _, fn := range listeners {
		fn(state)
	}

	c.chime()

	if resp.SentenceForImage != "" && c.deps.Poller != nil {
		c.deps.Poller.Start(c.ctx, resp.SentenceForImage)
	}

	c.deps.Typewriter.Reveal(state.LatestSegment)
	return nil
}

// SetInputVisible opens or closes the input. Closing clears the pending
// word; opening narrates the latest segment when autoplay is on.
func (c *Controller) SetInputVisible(visible bool) {
	c.setInputVisible(visible, true)
}

// OnTypewriterComplete reopens the input once a reveal has finished.
func (c *Controller) OnTypewriterComplete() {
	c.SetInputVisible(true)
}

func (c *Controller) setInputVisible(visible, narrate bool) {
	c.mu.Lock()
	if !visible {
		c.pending = ""
	}
	changed := c.inputVisible != visible
	c.inputVisible = visible
	state := c.state
	v := c.voice
	listeners := append([]func(bool){}, c.onInput...)
	c.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(visible)
		}
	}

	if visible && changed && narrate && c.opts.Autoplay && state.LatestSegment != "" {
		c.narrate(state.AudioRef, state.LatestSegment, v)
	}
}

// SetVoice changes the voice for future requests and persists it.
func (c *Controller) SetVoice(v voice.Voice) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %q", voice.ErrUnknown, v)
	}

	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()

	if c.deps.Prefs != nil {
		if err := c.deps.Prefs.SaveVoice(v); err != nil {
			return fmt.Errorf("voice changed for this session only: %w", err)
		}
	}
	return nil
}

func (c *Controller) Voice() voice.Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// PickWord fills the pending word with a suggestion. When the suggestion
// comes from the fallback list the input is reopened straight away.
func (c *Controller) PickWord(ctx context.Context) (word string, fallback bool, err error) {
	if c.deps.Words == nil {
		return "", false, ErrNoPicker
	}

	word, fallback = c.deps.Words.Pick(ctx)
	if fallback {
		c.SetInputVisible(true)
	}

	c.mu.Lock()
	c.pending = word
	c.mu.Unlock()
	return word, fallback, nil
}

// Used reports whether word has already been woven into the story.
func (c *Controller) Used(word string) bool {
	return c.used.Contains(strings.TrimSpace(word))
}

// PendingWord returns the suggested word waiting in the input, if any.
func (c *Controller) PendingWord() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Replay narrates the latest segment again, or the whole story when full
// is set. Playback runs in the background.
func (c *Controller) Replay(full bool) error {
	if c.deps.Narrator == nil {
		return ErrNothingToReplay
	}

	c.mu.Lock()
	state := c.state
	v := c.voice
	c.mu.Unlock()

	ref, text := state.AudioRef, state.LatestSegment
	if full {
		ref, text = state.FullAudioRef, state.FullText
	}
	if text == "" {
		return ErrNothingToReplay
	}
	if c.deps.Narrator.Playing() {
		return audio.ErrBusy
	}

	c.narrate(ref, text, v)
	return nil
}

// Reset starts a new story. Used words are kept for the session.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = story.State{}
	listeners := append([]func(story.State){}, c.onStory...)
	c.mu.Unlock()

	if c.deps.Poller != nil {
		c.deps.Poller.Stop()
	}
	for _, fn := range listeners {
		fn(story.State{})
	}
	c.deps.Typewriter.Reveal("")
	return nil
}

func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		State:        c.state,
		Voice:        c.voice,
		InputVisible: c.inputVisible,
		Generating:   c.generating,
		PendingWord:  c.pending,
	}
	c.mu.Unlock()

	v.UsedWords = c.used.List()
	v.Typing = c.deps.Typewriter.Revealing()
	if c.deps.Narrator != nil {
		v.PlayingAudio = c.deps.Narrator.Playing()
	}
	return v
}

// Wait blocks until background narration and chimes have finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

func (c *Controller) narrate(ref, text string, v voice.Voice) {
	if c.deps.Narrator == nil {
		return
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		var err error
		if ref != "" {
			err = c.deps.Narrator.PlayRef(c.ctx, ref)
		} else {
			err = c.deps.Narrator.Play(c.ctx, text, v)
		}

		switch {
		case err == nil:
		case errors.Is(err, audio.ErrBusy):
			c.log.Debug("Narration skipped, already playing")
		case errors.Is(err, context.Canceled):
		default:
			c.log.WithError(err).Warn("Narration failed")
		}
	}()
}

func (c *Controller) chime() {
	if !c.opts.Chime || c.deps.Chime == nil {
		return
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if err := c.deps.Chime.Chime(c.ctx); err != nil {
			c.log.WithError(err).Debug("Chime failed")
		}
	}()
}
