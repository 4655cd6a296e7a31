// Package nest is the terminal front-end of a story session: it draws the
// story as it is revealed and turns typed lines into words and commands.
package nest

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"onceupon/internal/cli/scheme/colours"
	"onceupon/internal/domain/gallery"
	"onceupon/internal/domain/story"
	"onceupon/internal/domain/voice"
	"onceupon/internal/story/audio"
	"onceupon/internal/story/session"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit")

// Updater is the part of the typewriter the front-end draws from.
type Updater interface {
	OnUpdate(fn func(partial string))
}

// ImageNotifier reports illustrations as they arrive.
type ImageNotifier interface {
	OnImage(fn func(ref string, index int))
}

// Stopper is anything that should be torn down when the session ends.
type Stopper interface {
	Stop()
}

type Config struct {
	In      io.Reader
	Out     io.Writer
	Gallery *gallery.Sequence
	Images  ImageNotifier
	Stop    []Stopper
}

// Nest renders one interactive story session.
type Nest struct {
	ctrl    *session.Controller
	gallery *gallery.Sequence
	in      io.Reader
	out     io.Writer
	stop    []Stopper
	log     *logrus.Entry

	opened chan struct{}

	mu       sync.Mutex
	shown    string
	revealed int
	midLine  bool
	work     sync.WaitGroup
}

func New(ctrl *session.Controller, tw Updater, cfg Config) *Nest {
	if cfg.Gallery == nil {
		cfg.Gallery = gallery.New()
	}
	n := &Nest{
		ctrl:    ctrl,
		gallery: cfg.Gallery,
		in:      cfg.In,
		out:     cfg.Out,
		stop:    cfg.Stop,
		log:     logrus.WithField("component", "nest"),
		opened:  make(chan struct{}, 1),
	}

	ctrl.OnStory(n.onStory)
	ctrl.OnInput(n.onInput)
	tw.OnUpdate(n.onReveal)
	if cfg.Images != nil {
		cfg.Images.OnImage(n.onImage)
	}
	return n
}

// Run reads lines until the user quits, input ends or ctx is cancelled.
func (n *Nest) Run(ctx context.Context) error {
	lines := make(chan string)
	go n.read(lines)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.ShowWelcome()
		n.prompt()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-lines:
				if !ok {
					n.finish(ctx)
					return errQuit
				}
				if err := n.handle(ctx, line); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		for _, s := range n.stop {
			s.Stop()
		}
		return nil
	})

	err := g.Wait()
	n.work.Wait()
	n.ctrl.Wait()

	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// read is left running on quit; it ends with the input stream.
func (n *Nest) read(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(n.in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		n.log.WithError(err).Warn("Failed to read input")
	}
}

func (n *Nest) ShowWelcome() {
	current := n.ctrl.Voice()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()

	fmt.Fprintln(n.out)
	colours.Title.Fprintln(n.out, "🌟 Once upon a time... 🌟")
	fmt.Fprintln(n.out)
	colours.Info.Fprintln(n.out, "📚 Give me one word at a time and I will weave it into a story.")
	fmt.Fprintln(n.out, "  • Type a word and press Enter")
	fmt.Fprintln(n.out, "  • :random picks a word for you, :help lists every command")
	fmt.Fprintf(n.out, "  • Narrating as the %s\n", current)
	fmt.Fprintln(n.out)
}

func (n *Nest) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, ":") {
		return n.command(ctx, line)
	}

	word := line
	if word == "" {
		word = n.ctrl.PendingWord()
		if word == "" {
			n.prompt()
			return nil
		}
	}

	if !n.ctrl.View().CanSubmit() {
		n.println(colours.Warning, "🤫 Hold on, the story is still being told.")
		return nil
	}

	if n.ctrl.Used(word) {
		n.println(colours.Info, fmt.Sprintf("📝 %q is already in the story, weaving it in again.", word))
	}
	n.println(colours.Info, fmt.Sprintf("⏳ Weaving %q into the story...", word))

	n.work.Add(1)
	go func() {
		defer n.work.Done()
		if err := n.ctrl.Submit(ctx, word); err != nil {
			n.submitFailed(err)
		}
	}()
	return nil
}

func (n *Nest) submitFailed(err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		n.println(colours.Warning, "🤫 Hold on, the story is still being told.")
	case errors.Is(err, session.ErrEmptyWord), errors.Is(err, session.ErrWordTooLong):
		n.println(colours.Error, fmt.Sprintf("❌ %v", err))
		n.prompt()
	case errors.Is(err, context.Canceled):
	default:
		n.println(colours.Error, "❌ The storyteller lost the thread. Try another word.")
		n.log.WithError(err).Debug("Submit failed")
	}
}

func (n *Nest) command(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		n.showHelp()
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "random", "r":
		n.pickWord(ctx)
	case "voice", "v":
		n.voice(args)
	case "voices":
		n.showVoices()
	case "words", "w":
		n.showWords()
	case "story", "s":
		n.showStory()
	case "images", "i":
		n.showImages()
	case "prev", "p":
		n.move(n.gallery.Prev)
	case "next", "n":
		n.move(n.gallery.Next)
	case "replay":
		full := len(args) > 0 && strings.EqualFold(args[0], "full")
		n.replay(full)
	case "reset":
		if err := n.ctrl.Reset(); err != nil {
			n.println(colours.Warning, "🤫 Wait for the story to finish first.")
		}
	case "help", "h", "?":
		n.showHelp()
	case "quit", "q", "exit":
		n.println(colours.Warning, "👋 The end. Sweet dreams! 🌙")
		return errQuit
	default:
		n.println(colours.Warning, fmt.Sprintf("🤔 Unknown command %q, try :help", name))
	}
	return nil
}

func (n *Nest) pickWord(ctx context.Context) {
	n.println(colours.Info, "🎲 Looking for a word...")

	n.work.Add(1)
	go func() {
		defer n.work.Done()
		word, fallback, err := n.ctrl.PickWord(ctx)
		if err != nil {
			n.println(colours.Error, fmt.Sprintf("❌ %v", err))
			return
		}

		msg := fmt.Sprintf("🎲 How about %q? Press Enter to use it.", word)
		if fallback {
			msg = fmt.Sprintf("🎲 How about %q from my own word box? Press Enter to use it.", word)
		}
		n.println(colours.Success, msg)
	}()
}

func (n *Nest) voice(args []string) {
	if len(args) == 0 {
		n.println(colours.Info, fmt.Sprintf("🎤 Current voice: %s", n.ctrl.Voice()))
		return
	}

	v, err := voice.Parse(args[0])
	if err != nil {
		n.println(colours.Error, fmt.Sprintf("❌ %v, try :voices", err))
		return
	}
	if err := n.ctrl.SetVoice(v); err != nil {
		n.println(colours.Warning, fmt.Sprintf("⚠️ %v", err))
		return
	}
	n.println(colours.Success, fmt.Sprintf("🎤 The %s will tell the rest of the story.", v))
}

func (n *Nest) showVoices() {
	current := n.ctrl.Voice()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()
	colours.Title.Fprintln(n.out, "🎤 Voices")
	for _, v := range voice.All() {
		if v == current {
			colours.Success.Fprintf(n.out, "  • %s (current)\n", v)
			continue
		}
		fmt.Fprintf(n.out, "  • %s\n", v)
	}
}

func (n *Nest) showWords() {
	used := n.ctrl.View().UsedWords

	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()
	if len(used) == 0 {
		colours.Info.Fprintln(n.out, "📝 No words used yet.")
		return
	}
	colours.Title.Fprint(n.out, "📝 Used words: ")
	colours.Word.Fprintln(n.out, strings.Join(used, ", "))
}

func (n *Nest) showStory() {
	state := n.ctrl.View().State

	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()
	if state.Empty() {
		colours.Info.Fprintln(n.out, "📖 The story has not started yet.")
		return
	}
	colours.Title.Fprintln(n.out, "📖 The story so far")
	colours.Story.Fprintln(n.out, state.FullText)
}

func (n *Nest) showImages() {
	refs := n.gallery.List()
	_, current, _ := n.gallery.Current()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()
	if len(refs) == 0 {
		colours.Info.Fprintln(n.out, "🖼️  No illustrations yet.")
		return
	}
	colours.Title.Fprintln(n.out, "🖼️  Illustrations")
	for i, ref := range refs {
		marker := " "
		if i == current {
			marker = "▶"
		}
		fmt.Fprintf(n.out, "  %s %d. %s\n", marker, i+1, describeImage(ref))
	}
}

func (n *Nest) move(step func() (string, int, bool)) {
	ref, index, ok := step()
	if !ok {
		n.println(colours.Info, "🖼️  No illustrations yet.")
		return
	}
	n.println(colours.Info, fmt.Sprintf("🖼️  %d/%d %s", index+1, n.gallery.Len(), describeImage(ref)))
}

func (n *Nest) replay(full bool) {
	err := n.ctrl.Replay(full)
	switch {
	case err == nil:
		n.println(colours.Success, "🎵 Replaying...")
	case errors.Is(err, audio.ErrBusy):
		n.println(colours.Warning, "🎵 Already narrating, listen along.")
	case errors.Is(err, session.ErrNothingToReplay):
		n.println(colours.Info, "🎵 Nothing to replay yet.")
	default:
		n.println(colours.Error, fmt.Sprintf("❌ %v", err))
	}
}

func (n *Nest) showHelp() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endLine()

	colours.Title.Fprintln(n.out, "📚 Commands")
	fmt.Fprintln(n.out, "  <word>          - Continue the story with a word")
	fmt.Fprintln(n.out, "  Enter           - Use the suggested word")
	fmt.Fprintln(n.out, "  :random         - Suggest a random word")
	fmt.Fprintln(n.out, "  :voice [name]   - Show or change the narrator")
	fmt.Fprintln(n.out, "  :voices         - List narrators")
	fmt.Fprintln(n.out, "  :words          - Show the words used so far")
	fmt.Fprintln(n.out, "  :story          - Show the whole story")
	fmt.Fprintln(n.out, "  :images         - List illustrations")
	fmt.Fprintln(n.out, "  :prev, :next    - Browse illustrations")
	fmt.Fprintln(n.out, "  :replay [full]  - Hear the last part or the whole story again")
	fmt.Fprintln(n.out, "  :reset          - Start a new story")
	fmt.Fprintln(n.out, "  :quit           - Leave")
}

func (n *Nest) onStory(s story.State) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.endLine()
	if s.Empty() {
		n.shown = ""
		fmt.Fprintln(n.out)
		colours.Title.Fprintln(n.out, "📖 A new story begins.")
		return
	}

	fmt.Fprintln(n.out)
	if s.PriorText != "" && s.PriorText != n.shown {
		colours.Story.Fprintln(n.out, s.PriorText)
	}
	n.shown = s.FullText
}

func (n *Nest) onReveal(partial string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	runes := []rune(partial)
	if len(runes) < n.revealed {
		n.revealed = 0
	}
	if len(runes) == n.revealed {
		return
	}
	colours.Segment.Fprint(n.out, string(runes[n.revealed:]))
	n.revealed = len(runes)
	n.midLine = true
}

func (n *Nest) onInput(visible bool) {
	if visible {
		n.prompt()
		select {
		case n.opened <- struct{}{}:
		default:
		}
	}
}

// finish lets a word submitted just before the input ended be told in full.
func (n *Nest) finish(ctx context.Context) {
	n.work.Wait()

	select {
	case <-n.opened:
	default:
	}
	if n.ctrl.View().InputVisible {
		return
	}
	select {
	case <-n.opened:
	case <-ctx.Done():
	}
}

func (n *Nest) onImage(ref string, index int) {
	n.println(colours.Success, fmt.Sprintf("🖼️  New illustration #%d: %s", index+1, describeImage(ref)))
}

func (n *Nest) prompt() {
	pending := n.ctrl.PendingWord()

	n.mu.Lock()
	defer n.mu.Unlock()

	n.endLine()
	if pending != "" {
		colours.Prompt.Fprintf(n.out, "✏️  Your word [%s]: ", pending)
		return
	}
	colours.Prompt.Fprint(n.out, "✏️  Your word: ")
}

func (n *Nest) println(c *color.Color, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.endLine()
	c.Fprintln(n.out, msg)
}

// endLine moves off a partly revealed line. Callers hold n.mu.
func (n *Nest) endLine() {
	if n.midLine {
		fmt.Fprintln(n.out)
		n.midLine = false
	}
}

// describeImage shortens inline images to their type and size.
func describeImage(ref string) string {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return ref
	}
	meta, payload, _ := strings.Cut(rest, ",")
	mediaType, _, _ := strings.Cut(meta, ";")
	if mediaType == "" {
		mediaType = "image"
	}
	size := uint64(base64.StdEncoding.DecodedLen(len(payload)))
	return fmt.Sprintf("inline %s, %s", mediaType, humanize.Bytes(size))
}
