//go:build !portaudio

package audio

import "fmt"

type unavailableDevice struct{}

// NewDefaultDevice returns the platform microphone. This build has no audio
// backend compiled in; rebuild with -tags portaudio.
func NewDefaultDevice() Device {
	return unavailableDevice{}
}

func (unavailableDevice) Open(CaptureConfig) error {
	return fmt.Errorf("built without portaudio support")
}

func (unavailableDevice) Read([]int16) error {
	return fmt.Errorf("built without portaudio support")
}

func (unavailableDevice) Close() error { return nil }
