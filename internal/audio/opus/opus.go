// Package opus provides an Opus codec for recorded utterances.
package opus

import (
	"fmt"

	"github.com/user/homehub-voice/internal/audio"
	"layeh.com/gopus"
)

const (
	Channels = 1
	// FrameDuration is the packet length in milliseconds.
	FrameDuration = 20

	maxPacketBytes = 4000
)

// Codec encodes mono PCM into 20ms Opus packets.
var Codec audio.Codec = opusCodec{}

type opusCodec struct{}

func (opusCodec) Name() string { return "opus" }

func frameSize(sampleRate int) int {
	return sampleRate * FrameDuration / 1000
}

func (opusCodec) NewEncoder(sampleRate int) (audio.Encoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	return &Encoder{
		encoder:   enc,
		frameSize: frameSize(sampleRate),
	}, nil
}

func (opusCodec) NewDecoder(sampleRate int) (audio.Decoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &Decoder{
		decoder:   dec,
		frameSize: frameSize(sampleRate),
	}, nil
}

// Encoder slices incoming PCM into whole packets and keeps the remainder for
// the next call.
type Encoder struct {
	encoder   *gopus.Encoder
	frameSize int
	pending   []int16
}

func (e *Encoder) Encode(pcm []int16) ([][]byte, error) {
	e.pending = append(e.pending, pcm...)

	var packets [][]byte
	for len(e.pending) >= e.frameSize {
		packet, err := e.encoder.Encode(e.pending[:e.frameSize], e.frameSize, maxPacketBytes)
		if err != nil {
			return packets, fmt.Errorf("failed to encode opus: %w", err)
		}
		packets = append(packets, packet)
		e.pending = e.pending[e.frameSize:]
	}

	// Avoid holding on to the whole history through the slice header.
	e.pending = append([]int16(nil), e.pending...)
	return packets, nil
}

// Flush pads the remainder with silence to a full packet.
func (e *Encoder) Flush() ([][]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	frame := make([]int16, e.frameSize)
	copy(frame, e.pending)
	e.pending = nil

	packet, err := e.encoder.Encode(frame, e.frameSize, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode opus: %w", err)
	}
	return [][]byte{packet}, nil
}

type Decoder struct {
	decoder   *gopus.Decoder
	frameSize int
}

func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	// Opus silence frame.
	if len(packet) == 3 && packet[0] == 0xF8 && packet[1] == 0xFF && packet[2] == 0xFE {
		return make([]int16, d.frameSize), nil
	}

	pcm, err := d.decoder.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opus: %w", err)
	}
	return pcm, nil
}
