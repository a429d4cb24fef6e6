package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// WriteWAV writes mono PCM16 samples as a RIFF/WAV stream.
func WriteWAV(w io.WriteSeeker, pcm []int16, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavFormatPCM)

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav header: %w", err)
	}
	return nil
}

// EncodeWAV returns pcm wrapped in a WAV container, built in memory.
func EncodeWAV(pcm []int16, sampleRate int) ([]byte, error) {
	fs := afero.NewMemMapFs()
	const name = "utterance.wav"

	f, err := fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav buffer: %w", err)
	}
	if err := WriteWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close wav buffer: %w", err)
	}

	return afero.ReadFile(fs, name)
}

// ReadWAV decodes a 16-bit WAV stream into mono samples and returns them with
// the stream's sample rate. Multi-channel input is downmixed by averaging.
func ReadWAV(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file")
	}
	if dec.BitDepth != wavBitDepth {
		return nil, 0, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read wav samples: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}

	pcm := make([]int16, len(buf.Data)/channels)
	for i := range pcm {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		pcm[i] = int16(sum / channels)
	}

	return pcm, int(dec.SampleRate), nil
}
