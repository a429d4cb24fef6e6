//go:build vosk

package vosk

import (
	"context"
	"encoding/json"
	"fmt"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
)

type VoskTranscriber struct {
	model      *vosk.VoskModel
	sampleRate int
}

type VoskResult struct {
	Text   string     `json:"text"`
	Result []VoskWord `json:"result"`
}

type VoskWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

func NewVoskTranscriber(modelPath string, sampleRate int) (*VoskTranscriber, error) {
	log.Info().Str("model_path", modelPath).Msg("Loading Vosk model")

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Vosk model from %s: %w", modelPath, err)
	}

	log.Info().Msg("Vosk model loaded successfully")

	return &VoskTranscriber{
		model:      model,
		sampleRate: sampleRate,
	}, nil
}

func (v *VoskTranscriber) Name() string { return "vosk" }

// Transcribe feeds the whole utterance to a fresh recognizer so no state
// leaks between utterances.
func (v *VoskTranscriber) Transcribe(ctx context.Context, utterance *audio.Utterance) (*stt.Result, error) {
	if utterance.SampleRate != v.sampleRate {
		return nil, fmt.Errorf("utterance is %d Hz, model loaded for %d Hz", utterance.SampleRate, v.sampleRate)
	}

	pcm, err := utterance.PCM()
	if err != nil {
		return nil, fmt.Errorf("failed to decode utterance: %w", err)
	}

	recognizer, err := vosk.NewRecognizer(v.model, float64(v.sampleRate))
	if err != nil {
		return nil, fmt.Errorf("failed to create Vosk recognizer: %w", err)
	}
	defer recognizer.Free()
	recognizer.SetWords(1)

	if recognizer.AcceptWaveform(audio.Int16ToBytes(pcm)) == -1 {
		return nil, fmt.Errorf("failed to process audio")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonResult := recognizer.FinalResult()

	var voskResult VoskResult
	if err := json.Unmarshal([]byte(jsonResult), &voskResult); err != nil {
		log.Warn().
			Err(err).
			Str("json", jsonResult).
			Msg("Failed to parse Vosk result")
		return nil, fmt.Errorf("failed to parse Vosk result: %w", err)
	}

	var confidence float64
	if len(voskResult.Result) > 0 {
		for _, w := range voskResult.Result {
			confidence += w.Conf
		}
		confidence /= float64(len(voskResult.Result))
	}

	log.Debug().
		Str("utterance_id", utterance.ID.String()).
		Str("text", voskResult.Text).
		Float64("confidence", confidence).
		Msg("Vosk transcription completed")

	return &stt.Result{Text: voskResult.Text, Confidence: confidence}, nil
}

func (v *VoskTranscriber) Close() error {
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	return nil
}
