package audio

import (
	"encoding/binary"
	"fmt"
)

// PCM16 stores frames as raw little-endian 16-bit samples, one chunk per frame.
var PCM16 Codec = pcm16Codec{}

type pcm16Codec struct{}

func (pcm16Codec) Name() string { return "pcm16" }

func (pcm16Codec) NewEncoder(int) (Encoder, error) { return pcm16Codec{}, nil }

func (pcm16Codec) NewDecoder(int) (Decoder, error) { return pcm16Codec{}, nil }

func (pcm16Codec) Encode(pcm []int16) ([][]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}
	return [][]byte{Int16ToBytes(pcm)}, nil
}

func (pcm16Codec) Flush() ([][]byte, error) { return nil, nil }

func (pcm16Codec) Decode(chunk []byte) ([]int16, error) {
	if len(chunk)%2 != 0 {
		return nil, fmt.Errorf("odd pcm16 chunk length %d", len(chunk))
	}
	return BytesToInt16(chunk), nil
}

// Int16ToBytes converts samples to little-endian PCM16 bytes.
func Int16ToBytes(samples []int16) []byte {
	bytes := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(bytes[i*2:], uint16(s))
	}
	return bytes
}

// BytesToInt16 converts little-endian PCM16 bytes to samples. A trailing odd
// byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
