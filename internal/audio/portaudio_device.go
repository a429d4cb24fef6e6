//go:build portaudio

package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// PortAudioDevice reads from the system default input device.
type PortAudioDevice struct {
	stream      *portaudio.Stream
	in          []int16
	initialized bool
}

// NewDefaultDevice returns the platform microphone.
func NewDefaultDevice() Device {
	return &PortAudioDevice{}
}

func (d *PortAudioDevice) Open(cfg CaptureConfig) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	d.initialized = true

	// PortAudio has no portable switch for either; the OS input chain decides.
	log.Debug().
		Bool("echo_cancellation", cfg.EchoCancellation).
		Bool("noise_suppression", cfg.NoiseSuppression).
		Msg("Requested input processing is best-effort with PortAudio")

	d.in = make([]int16, cfg.FrameSamples())
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), len(d.in), d.in)
	if err != nil {
		d.terminate()
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		d.terminate()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	d.stream = stream
	return nil
}

func (d *PortAudioDevice) Read(buf []int16) error {
	if d.stream == nil {
		return fmt.Errorf("input stream not open")
	}
	if err := d.stream.Read(); err != nil {
		return fmt.Errorf("failed to read input stream: %w", err)
	}
	copy(buf, d.in)
	return nil
}

func (d *PortAudioDevice) Close() error {
	var firstErr error
	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to stop input stream: %w", err)
		}
		if err := d.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close input stream: %w", err)
		}
		d.stream = nil
	}
	d.terminate()
	return firstErr
}

func (d *PortAudioDevice) terminate() {
	if d.initialized {
		portaudio.Terminate()
		d.initialized = false
	}
}
