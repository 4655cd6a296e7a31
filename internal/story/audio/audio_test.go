package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"onceupon/internal/domain/voice"

	"github.com/faiface/beep"
)

var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func TestDetectFormat(t *testing.T) {
	if got := DetectFormat(wavHeader); got != FormatWAV {
		t.Errorf("DetectFormat(wav) = %s", got)
	}
	if got := DetectFormat([]byte("ID3\x03\x00")); got != FormatMP3 {
		t.Errorf("DetectFormat(id3) = %s", got)
	}
	if got := DetectFormat(nil); got != FormatMP3 {
		t.Errorf("DetectFormat(nil) = %s", got)
	}
}

func TestDecodeDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))

	t.Run("mpeg", func(t *testing.T) {
		clip, err := DecodeDataURI("data:audio/mpeg;base64," + payload)
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if clip.Format != FormatMP3 || string(clip.Data) != "mp3-bytes" {
			t.Errorf("clip = %+v", clip)
		}
	})

	t.Run("unknown mime sniffs data", func(t *testing.T) {
		clip, err := DecodeDataURI("data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(wavHeader))
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if clip.Format != FormatWAV {
			t.Errorf("Format = %s", clip.Format)
		}
	})

	for _, bad := range []string{"http://x/a.mp3", "data:audio/mpeg", "data:audio/mpeg,plain", "data:audio/mpeg;base64,***"} {
		if _, err := DecodeDataURI(bad); err == nil {
			t.Errorf("DecodeDataURI(%q) succeeded", bad)
		}
	}
}

type fakeSource struct {
	audioRef string
	fetched  []string
	body     []byte
	err      error
}

func (f *fakeSource) Audio(_ context.Context, text string, v voice.Voice) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.audioRef, nil
}

func (f *fakeSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.fetched = append(f.fetched, ref)
	return f.body, nil
}

func TestBackendSynthesizer(t *testing.T) {
	t.Run("url reference is downloaded", func(t *testing.T) {
		src := &fakeSource{audioRef: "/media/1.wav", body: wavHeader}
		b := NewBackendSynthesizer(src)

		clip, err := b.Synthesize(context.Background(), "Hello", voice.Woman)
		if err != nil {
			t.Fatalf("Synthesize() error: %v", err)
		}
		if clip.Format != FormatWAV {
			t.Errorf("Format = %s", clip.Format)
		}
		if !reflect.DeepEqual(src.fetched, []string{"/media/1.wav"}) {
			t.Errorf("fetched = %v", src.fetched)
		}
	})

	t.Run("data uri is decoded locally", func(t *testing.T) {
		src := &fakeSource{audioRef: "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString([]byte("abc"))}
		b := NewBackendSynthesizer(src)

		clip, err := b.Synthesize(context.Background(), "Hello", voice.Woman)
		if err != nil {
			t.Fatalf("Synthesize() error: %v", err)
		}
		if string(clip.Data) != "abc" || len(src.fetched) != 0 {
			t.Errorf("clip = %+v fetched = %v", clip, src.fetched)
		}
	})

	t.Run("backend error is returned", func(t *testing.T) {
		b := NewBackendSynthesizer(&fakeSource{err: errors.New("boom")})
		if _, err := b.Synthesize(context.Background(), "Hello", voice.Man); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCachedSynthesizer(t *testing.T) {
	inner := &fakeSynth{}
	c := NewCachedSynthesizer(inner, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := c.Synthesize(context.Background(), "Once upon a time", voice.Man); err != nil {
			t.Fatalf("Synthesize() error: %v", err)
		}
	}
	if _, err := c.Synthesize(context.Background(), "Once upon a time", voice.Witch); err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2 (one per voice)", inner.calls)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

type closingSynth struct {
	fakeSynth
	closed int
}

func (c *closingSynth) Close() error {
	c.closed++
	return nil
}

func TestCachedSynthesizer_Close(t *testing.T) {
	inner := &closingSynth{}
	if err := NewCachedSynthesizer(inner, time.Minute).Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if inner.closed != 1 {
		t.Errorf("inner closed %d times, want 1", inner.closed)
	}

	if err := NewCachedSynthesizer(&fakeSynth{}, time.Minute).Close(); err != nil {
		t.Errorf("Close() without a closable engine: %v", err)
	}
}

func TestCachedSynthesizer_DoesNotCacheErrors(t *testing.T) {
	inner := &fakeSynth{err: errors.New("offline")}
	c := NewCachedSynthesizer(inner, time.Minute)

	c.Synthesize(context.Background(), "x", voice.Man)
	c.Synthesize(context.Background(), "x", voice.Man)

	if inner.calls != 2 || c.Len() != 0 {
		t.Errorf("calls = %d len = %d", inner.calls, c.Len())
	}
}

func TestESpeakArgs(t *testing.T) {
	e := &ESpeakSynthesizer{path: "espeak-ng", speed: 1.0, volume: 1.0}

	got := e.args("Hello there", voice.Witch)
	want := []string{"-v", "en+croak", "-s", "148", "-a", "100", "--stdout", "Hello there"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}

	got = e.args("Hi", voice.Voice("unknown"))
	if got[1] != "en+m3" {
		t.Errorf("unknown voice variant = %q, want default", got[1])
	}
}

func TestGoogleRequest(t *testing.T) {
	req := googleRequest("Hello", voice.Witch)
	if req.GetVoice().GetName() != "en-GB-Chirp3-HD-Umbriel" {
		t.Errorf("voice = %q", req.GetVoice().GetName())
	}
	if req.GetVoice().GetLanguageCode() != "en-GB" {
		t.Errorf("language = %q", req.GetVoice().GetLanguageCode())
	}
	if req.GetInput().GetText() != "Hello" {
		t.Errorf("text = %q", req.GetInput().GetText())
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "ascii", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "multibyte boundary", text: strings.Repeat("é", 5), limit: 5, want: []string{"éé", "éé", "é"}},
		{name: "rune wider than limit", text: "🐉a", limit: 2, want: []string{"🐉", "a"}},
		{name: "empty", text: "", limit: 4, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIntoChunks(tt.text, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("chunks = %q, want %q", got, tt.want)
			}
			if strings.Join(got, "") != tt.text {
				t.Errorf("chunks do not rebuild the text: %q", got)
			}
		})
	}
}

func TestSplitIntoChunks_StaysUnderByteLimit(t *testing.T) {
	text := strings.Repeat("ñandú ", 2000)
	for i, chunk := range splitIntoChunks(text, googleChunkLimit) {
		if len(chunk) > googleChunkLimit {
			t.Errorf("chunk %d is %d bytes, limit %d", i, len(chunk), googleChunkLimit)
		}
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d splits a rune", i)
		}
	}
}

func TestTone(t *testing.T) {
	sr := beep.SampleRate(1000)
	s := tone(sr, 100, 50*time.Millisecond, 0.5)

	buf := make([][2]float64, 16)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			break
		}
		for _, sample := range buf[:n] {
			if sample[0] > 0.5 || sample[0] < -0.5 {
				t.Fatalf("sample %v exceeds gain", sample)
			}
		}
	}
	if total != 50 {
		t.Errorf("tone produced %d samples, want 50", total)
	}
}

func TestMockSink(t *testing.T) {
	var out bytes.Buffer
	m := NewMockSink(&out, time.Millisecond)

	if err := m.Play(context.Background(), Clip{Data: []byte("one two three"), Format: FormatText}); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !strings.Contains(out.String(), "3 words") {
		t.Errorf("output = %q", out.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewMockSink(&out, time.Hour)
	if err := slow.Play(ctx, Clip{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Play() on cancelled ctx = %v", err)
	}
}

func TestNewSynthesizer(t *testing.T) {
	synth, err := NewSynthesizer(context.Background(), Config{Engine: "backend", CacheTTL: time.Minute}, &fakeSource{})
	if err != nil {
		t.Fatalf("NewSynthesizer() error: %v", err)
	}
	if _, ok := synth.(*CachedSynthesizer); !ok {
		t.Errorf("synth = %T, want *CachedSynthesizer", synth)
	}
	if synth.Name() != "backend" {
		t.Errorf("Name() = %q", synth.Name())
	}

	if _, err := NewSynthesizer(context.Background(), Config{Engine: "sapi"}, &fakeSource{}); err == nil {
		t.Error("unsupported engine accepted")
	}
}
