package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// chunkBacklog bounds how many device callbacks may queue before the oldest
// audio is dropped in favour of fresh input.
const chunkBacklog = 16

// MicDevice captures from the default system microphone through miniaudio.
type MicDevice struct {
	// LogProc receives backend diagnostics; may be nil.
	LogProc func(message string)
}

func (m *MicDevice) Open(sampleRate, bufferSize int) (Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, m.LogProc)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	s := &micStream{
		ctx:    ctx,
		chunks: make(chan []float64, chunkBacklog),
		done:   make(chan struct{}),
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = 1
	config.SampleRate = uint32(sampleRate)
	config.PeriodSizeInFrames = uint32(bufferSize)
	config.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			s.deliver(input, frameCount)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		s.releaseContext()
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.releaseContext()
		return nil, fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}
	s.device = device

	return s, nil
}

type micStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	chunks  chan []float64
	pending []float64 // only touched by the reading goroutine

	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// deliver runs on the miniaudio thread and must never block.
func (s *micStream) deliver(input []byte, frameCount uint32) {
	n := int(frameCount)
	if n*4 > len(input) {
		n = len(input) / 4
	}
	if n == 0 {
		return
	}

	chunk := make([]float64, n)
	for i := range chunk {
		chunk[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:])))
	}

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.chunks <- chunk:
	default:
		// drop the oldest chunk so the reader stays close to real time
		select {
		case <-s.chunks:
		default:
		}
		select {
		case s.chunks <- chunk:
		default:
		}
	}
}

func (s *micStream) Read(buf []float64) (int, error) {
	n := 0
	for n < len(buf) {
		if len(s.pending) == 0 {
			select {
			case chunk := <-s.chunks:
				s.pending = chunk
			case <-s.done:
				return n, ErrStreamClosed
			}
		}
		c := copy(buf[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *micStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.device != nil {
			err = s.device.Stop()
		}
	})
	return err
}

func (s *micStream) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
			s.device = nil
		}
		s.releaseContext()
	})
	return err
}

func (s *micStream) releaseContext() {
	if s.ctx == nil {
		return
	}
	_ = s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
}
