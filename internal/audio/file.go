package audio

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// FileDevice replays a WAV file as if it were a microphone. With Realtime set
// every Read takes as long as the audio it returns.
type FileDevice struct {
	Path     string
	Realtime bool
}

func (f *FileDevice) Open(sampleRate, bufferSize int) (Stream, error) {
	samples, rate, err := ReadWavAsFloat64(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if rate != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, capture wants %d Hz", ErrDeviceUnavailable, f.Path, rate, sampleRate)
	}
	return &fileStream{
		samples:    samples,
		sampleRate: rate,
		realtime:   f.Realtime,
		done:       make(chan struct{}),
	}, nil
}

type fileStream struct {
	samples    []float64
	pos        int
	sampleRate int
	realtime   bool

	done     chan struct{}
	stopOnce sync.Once
}

func (s *fileStream) Read(buf []float64) (int, error) {
	select {
	case <-s.done:
		return 0, ErrStreamClosed
	default:
	}
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}

	n := copy(buf, s.samples[s.pos:])
	s.pos += n

	if s.realtime {
		wait := time.Duration(float64(n) / float64(s.sampleRate) * float64(time.Second))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.done:
			return n, ErrStreamClosed
		}
	}
	return n, nil
}

func (s *fileStream) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fileStream) Close() error {
	s.Stop()
	s.samples = nil
	return nil
}
