package nest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"onceupon/internal/backend"
	"onceupon/internal/domain/gallery"
	"onceupon/internal/domain/story"
	"onceupon/internal/domain/voice"
	"onceupon/internal/story/session"
	"onceupon/internal/story/typewriter"
)

const wait = 3 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) waitFor(t *testing.T, substr string, count int) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if strings.Count(b.String(), substr) >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %d × %q:\n%s", count, substr, b.String())
}

type fakeStory struct {
	mu      sync.Mutex
	words   []string
	release chan struct{}
}

func (f *fakeStory) Story(ctx context.Context, req backend.StoryRequest) (story.Response, error) {
	f.mu.Lock()
	f.words = append(f.words, req.Word)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return story.Response{}, ctx.Err()
		}
	}

	segment := "A " + req.Word + " appeared."
	full := strings.TrimSpace(req.Story + " " + segment)
	return story.Response{OldStory: req.Story, NewStory: segment, FullStory: full}, nil
}

func (f *fakeStory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.words)
}

type fakeImages struct {
	fn func(ref string, index int)
}

func (f *fakeImages) OnImage(fn func(ref string, index int)) { f.fn = fn }

type harness struct {
	in     *io.PipeWriter
	out    *syncBuffer
	story  *fakeStory
	images *fakeImages
	gal    *gallery.Sequence
	done   chan error
}

func start(t *testing.T, st *fakeStory) *harness {
	t.Helper()

	tw := typewriter.New(time.Millisecond)
	ctrl := session.New(context.Background(), session.Deps{
		Story:      st,
		Typewriter: tw,
	}, session.Options{Voice: voice.Man})
	tw.OnComplete(ctrl.OnTypewriterComplete)

	r, w := io.Pipe()
	h := &harness{
		in:     w,
		out:    &syncBuffer{},
		story:  st,
		images: &fakeImages{},
		gal:    gallery.New(),
		done:   make(chan error, 1),
	}

	n := New(ctrl, tw, Config{In: r, Out: h.out, Gallery: h.gal, Images: h.images, Stop: []Stopper{tw}})
	go func() { h.done <- n.Run(context.Background()) }()

	h.out.waitFor(t, "Your word", 1)
	return h
}

func (h *harness) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(h.in, line+"\n"); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (h *harness) quit(t *testing.T) {
	t.Helper()
	h.send(t, ":quit")
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(wait):
		t.Fatal("Run() did not return after :quit")
	}
}

func TestNest_TellsTheStory(t *testing.T) {
	h := start(t, &fakeStory{})

	h.send(t, "dragon")
	h.out.waitFor(t, "A dragon appeared.", 1)
	h.out.waitFor(t, "Your word", 2)

	h.send(t, "castle")
	h.out.waitFor(t, "A castle appeared.", 1)
	h.out.waitFor(t, "Your word", 3)

	h.send(t, ":words")
	h.out.waitFor(t, "dragon, castle", 1)

	h.send(t, ":story")
	h.out.waitFor(t, "A dragon appeared. A castle appeared.", 1)

	h.quit(t)
}

func TestNest_DropsWordsWhileBusy(t *testing.T) {
	st := &fakeStory{release: make(chan struct{})}
	h := start(t, st)

	h.send(t, "owl")
	deadline := time.Now().Add(wait)
	for st.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.send(t, "cat")
	h.out.waitFor(t, "Hold on", 1)

	close(st.release)
	h.out.waitFor(t, "A owl appeared.", 1)
	h.quit(t)

	if st.count() != 1 {
		t.Errorf("story requests = %d, want 1", st.count())
	}
}

func TestNest_Voice(t *testing.T) {
	h := start(t, &fakeStory{})

	h.send(t, ":voice witch")
	h.out.waitFor(t, "The witch will tell", 1)

	h.send(t, ":voice robot")
	h.out.waitFor(t, "try :voices", 1)

	h.send(t, ":voices")
	h.out.waitFor(t, "witch (current)", 1)

	h.quit(t)
}

func TestNest_Gallery(t *testing.T) {
	h := start(t, &fakeStory{})

	h.send(t, ":images")
	h.out.waitFor(t, "No illustrations yet", 1)

	idx := h.gal.Append("/images/1.png")
	h.images.fn("/images/1.png", idx)
	h.out.waitFor(t, "New illustration #1: /images/1.png", 1)

	idx = h.gal.Append("data:image/png;base64,AAAAAAAA")
	h.images.fn("data:image/png;base64,AAAAAAAA", idx)
	h.out.waitFor(t, "New illustration #2: inline image/png, 6 B", 1)

	h.send(t, ":prev")
	h.out.waitFor(t, "1/2 /images/1.png", 1)

	h.send(t, ":prev")
	h.out.waitFor(t, "1/2 /images/1.png", 2)

	h.quit(t)
}

func TestDescribeImage(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{ref: "/images/7.png", want: "/images/7.png"},
		{ref: "https://cdn.example.com/a.jpg", want: "https://cdn.example.com/a.jpg"},
		{ref: "data:image/jpeg;base64," + strings.Repeat("A", 4000), want: "inline image/jpeg, 3.0 kB"},
	}

	for _, tt := range tests {
		if got := describeImage(tt.ref); got != tt.want {
			t.Errorf("describeImage(%.30q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestNest_FinishesStoryWhenInputEnds(t *testing.T) {
	st := &fakeStory{}
	tw := typewriter.New(time.Millisecond)
	ctrl := session.New(context.Background(), session.Deps{
		Story:      st,
		Typewriter: tw,
	}, session.Options{Voice: voice.Man})
	tw.OnComplete(ctrl.OnTypewriterComplete)

	out := &syncBuffer{}
	n := New(ctrl, tw, Config{In: strings.NewReader("dragon\n"), Out: out, Stop: []Stopper{tw}})

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(wait):
		t.Fatal("Run() did not return at end of input")
	}

	if st.count() != 1 {
		t.Errorf("story requests = %d, want 1", st.count())
	}
	if !strings.Contains(out.String(), "A dragon appeared.") {
		t.Errorf("story was not told before exit:\n%s", out.String())
	}
	if strings.Contains(out.String(), "lost the thread") {
		t.Errorf("story request was cancelled:\n%s", out.String())
	}
}

func TestNest_NotesRepeatedWords(t *testing.T) {
	h := start(t, &fakeStory{})

	h.send(t, "moon")
	h.out.waitFor(t, "A moon appeared.", 1)
	h.out.waitFor(t, "Your word", 2)

	h.send(t, "moon")
	h.out.waitFor(t, "already in the story", 1)

	h.quit(t)
}
