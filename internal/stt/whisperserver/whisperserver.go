// Package whisperserver transcribes through a running whisper.cpp server.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
)

type WhisperServerTranscriber struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

func NewWhisperServerTranscriber(serverURL, language string) (*WhisperServerTranscriber, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper server URL is required")
	}
	if language == "" {
		language = stt.DefaultLanguage
	}
	return &WhisperServerTranscriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   language,
		httpClient: &http.Client{},
	}, nil
}

func (w *WhisperServerTranscriber) Name() string { return "whisper-server" }

func (w *WhisperServerTranscriber) Transcribe(ctx context.Context, utterance *audio.Utterance) (*stt.Result, error) {
	wavData, err := stt.UtteranceWAV(utterance)
	if err != nil {
		return nil, fmt.Errorf("failed to convert utterance to WAV: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return nil, fmt.Errorf("failed to write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        w.language,
		"response_format": "json",
		"no_timestamps":   "true",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := w.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Debug().
		Str("url", endpoint).
		Int("audio_size_bytes", len(wavData)).
		Msg("Making whisper server request")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper server request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper server error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("whisper server error: %s", result.Error)
	}

	return &stt.Result{Text: strings.TrimSpace(result.Text)}, nil
}

func (w *WhisperServerTranscriber) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}
