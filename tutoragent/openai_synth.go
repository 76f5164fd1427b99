package tutoragent

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// openAISynth backs Synthesizer with OpenAI's text-to-speech endpoint, the
// same SDK modelclient's openai provider and safety's moderation/rewrite
// clients already use. voiceID is passed through verbatim as the OpenAI
// voice name (e.g. "alloy", "verse").
type openAISynth struct {
	client *openai.Client
	model  openai.SpeechModel
}

// NewOpenAISynth builds a Synthesizer backed by OpenAI's speech endpoint.
func NewOpenAISynth(apiKey string, model openai.SpeechModel) Synthesizer {
	return &openAISynth{client: openai.NewClient(apiKey), model: model}
}

func (s *openAISynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: s.model,
		Voice: openai.SpeechVoice(voiceID),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("tutoragent: openai synth: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("tutoragent: openai synth: read audio: %w", err)
	}
	return audio, nil
}
