package audio

import (
	"errors"
	"io"
	"sync"
	"time"
)

// scriptedDevice plays back a fixed list of frames, then either reports
// io.EOF or keeps producing silence.
type scriptedDevice struct {
	openErr error
	frames  [][]int16
	endless bool
	// readErr, when set, is returned by every read after the script.
	readErr error

	mu     sync.Mutex
	next   int
	opened int
	closed int
	cfg    CaptureConfig
}

func (d *scriptedDevice) Open(cfg CaptureConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opened++
	d.cfg = cfg
	return nil
}

func (d *scriptedDevice) Read(buf []int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed > 0 {
		return errors.New("device closed")
	}
	if d.next < len(d.frames) {
		copy(buf, d.frames[d.next])
		d.next++
		return nil
	}
	if d.readErr != nil {
		return d.readErr
	}
	if !d.endless {
		return io.EOF
	}
	time.Sleep(time.Millisecond)
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (d *scriptedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *scriptedDevice) counts() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.closed
}

func constFrame(n int, v int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}
