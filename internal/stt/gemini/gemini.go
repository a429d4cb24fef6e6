// Package gemini transcribes utterances with a Gemini multimodal model.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

type GeminiTranscriber struct {
	client   *genai.Client
	model    string
	language string
}

func NewGeminiTranscriber(ctx context.Context, apiKey, model, language string) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GENAI_API_KEY is required for the gemini backend")
	}
	if model == "" {
		model = DefaultModel
	}
	if language == "" {
		language = stt.DefaultLanguage
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTranscriber{
		client:   client,
		model:    model,
		language: language,
	}, nil
}

func (g *GeminiTranscriber) Name() string { return "gemini" }

func (g *GeminiTranscriber) Transcribe(ctx context.Context, utterance *audio.Utterance) (*stt.Result, error) {
	wavData, err := stt.UtteranceWAV(utterance)
	if err != nil {
		return nil, fmt.Errorf("failed to convert utterance to WAV: %w", err)
	}

	genModel := g.client.GenerativeModel(g.model)
	genModel.SetTemperature(0)

	resp, err := genModel.GenerateContent(ctx,
		genai.Blob{MIMEType: "audio/wav", Data: wavData},
		genai.Text(buildPrompt(g.language)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transcription: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no transcription generated")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	log.Debug().
		Str("utterance_id", utterance.ID.String()).
		Str("model", g.model).
		Int("text_length", text.Len()).
		Msg("Gemini transcription completed")

	return &stt.Result{Text: strings.TrimSpace(text.String())}, nil
}

func buildPrompt(language string) string {
	return fmt.Sprintf(`Transcribe the spoken words in this audio clip verbatim. The language is %q.
Reply with the plain transcript only: no timestamps, no speaker labels, no commentary.
If nothing intelligible is said, reply with an empty message.`, language)
}

func (g *GeminiTranscriber) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
