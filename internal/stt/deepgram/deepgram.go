package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
)

const DefaultBaseURL = "https://api.deepgram.com/v1/listen"

type DeepgramTranscriber struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

type DeepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramTranscriber talks to the prerecorded endpoint. An empty baseURL
// selects DefaultBaseURL.
func NewDeepgramTranscriber(apiKey, model, language, baseURL string) (*DeepgramTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram backend")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if language == "" {
		language = stt.DefaultLanguage
	}
	return &DeepgramTranscriber{
		apiKey:     apiKey,
		model:      model,
		language:   language,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}, nil
}

func (d *DeepgramTranscriber) Name() string { return "deepgram" }

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, utterance *audio.Utterance) (*stt.Result, error) {
	wavData, err := stt.UtteranceWAV(utterance)
	if err != nil {
		return nil, fmt.Errorf("failed to convert utterance to WAV: %w", err)
	}

	params := url.Values{}
	if d.model != "" {
		params.Set("model", d.model)
	}
	params.Set("punctuate", "false")
	params.Set("smart_format", "false")
	params.Set("language", d.language)

	fullURL := d.baseURL + "?" + params.Encode()

	log.Debug().
		Str("url", fullURL).
		Str("model", d.model).
		Int("audio_size_bytes", len(wavData)).
		Msg("Making Deepgram API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(wavData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Deepgram API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Deepgram API error response")
		return nil, fmt.Errorf("Deepgram API error %d: %s", resp.StatusCode, string(body))
	}

	var result DeepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		log.Debug().Msg("No alternatives in Deepgram response")
		return &stt.Result{}, nil
	}

	best := result.Results.Channels[0].Alternatives[0]
	return &stt.Result{
		Text:       strings.TrimSpace(best.Transcript),
		Confidence: best.Confidence,
	}, nil
}

func (d *DeepgramTranscriber) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
