package audio

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"onceupon/internal/domain/voice"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

const googleChunkLimit = 4800 // a little under the 5000 byte request limit

var googleVoices = map[voice.Voice]string{
	voice.Man:        "en-US-Chirp3-HD-Charon",
	voice.Woman:      "en-US-Chirp3-HD-Aoede",
	voice.Passionate: "en-US-Chirp3-HD-Fenrir",
	voice.Witch:      "en-GB-Chirp3-HD-Umbriel",
}

// GoogleSynthesizer renders MP3 narration with Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	client *texttospeech.Client
}

func newGoogleSynthesizer(ctx context.Context, cfg Config) (*GoogleSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return &GoogleSynthesizer{client: client}, nil
}

func (g *GoogleSynthesizer) Name() string {
	return EngineTypeGoogle.String()
}

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text string, v voice.Voice) (Clip, error) {
	var buf bytes.Buffer
	for i, chunk := range splitIntoChunks(text, googleChunkLimit) {
		resp, err := g.client.SynthesizeSpeech(ctx, googleRequest(chunk, v))
		if err != nil {
			return Clip{}, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		buf.Write(resp.AudioContent)
	}
	return Clip{Data: buf.Bytes(), Format: FormatMP3}, nil
}

func (g *GoogleSynthesizer) Close() error {
	return g.client.Close()
}

func googleRequest(text string, v voice.Voice) *texttospeechpb.SynthesizeSpeechRequest {
	name, ok := googleVoices[v]
	if !ok {
		name = googleVoices[voice.Default]
	}
	// Chirp voices reject speakingRate and pitch, so only the encoding is set.
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: name[:5],
			Name:         name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
}

// splitIntoChunks cuts text into pieces of at most limit bytes without
// splitting a rune.
func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	for len(text) > 0 {
		end := len(text)
		if end > limit {
			end = limit
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == 0 {
				_, end = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}
