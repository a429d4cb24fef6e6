package audio

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
)

// FileDevice replays a WAV file as if it were a microphone. With realtime
// set, reads are paced to the capture tick.
type FileDevice struct {
	fs       afero.Fs
	path     string
	realtime bool

	samples []int16
	pos     int
	ticker  *time.Ticker
}

func NewFileDevice(fs afero.Fs, path string, realtime bool) *FileDevice {
	return &FileDevice{
		fs:       fs,
		path:     path,
		realtime: realtime,
	}
}

func (d *FileDevice) Open(cfg CaptureConfig) error {
	f, err := d.fs.Open(d.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.path, err)
	}
	defer f.Close()

	samples, rate, err := ReadWAV(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", d.path, err)
	}
	if rate != cfg.SampleRate {
		return fmt.Errorf("%s is %d Hz, capture expects %d Hz", d.path, rate, cfg.SampleRate)
	}

	d.samples = samples
	d.pos = 0
	if d.realtime {
		d.ticker = time.NewTicker(cfg.Tick)
	}
	return nil
}

// Read fills buf with the next block of samples, zero-padding the final
// block. It returns io.EOF once the file is exhausted.
func (d *FileDevice) Read(buf []int16) error {
	if d.pos >= len(d.samples) {
		return io.EOF
	}
	if d.ticker != nil {
		<-d.ticker.C
	}

	n := copy(buf, d.samples[d.pos:])
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	d.pos += n
	return nil
}

func (d *FileDevice) Close() error {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
	d.samples = nil
	return nil
}
