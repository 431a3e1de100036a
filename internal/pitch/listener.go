package pitch

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/himanishpuri/KaraokeCore/internal/audio"
	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

// Logger is the logging surface the engine packages depend on.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// DefaultMaxSampleAge bounds how old the latest sample may be before Latest
// stops returning it. A few capture buffers at the default size.
const DefaultMaxSampleAge = 250 * time.Millisecond

// ErrCaptureFailed wraps the read error that ended a capture session.
var ErrCaptureFailed = errors.New("capture failed")

// Listener owns at most one capture session. A dedicated goroutine performs
// blocking reads and publishes each analyzed buffer as an immutable snapshot;
// readers only ever see the most recent one.
type Listener struct {
	detector   *Detector
	bufferSize int
	maxAge     time.Duration
	now        func() time.Time
	log        Logger

	mu      sync.Mutex // serializes Start/Stop
	stream  audio.Stream
	running atomic.Bool
	wg      sync.WaitGroup
	latest  atomic.Pointer[model.PitchSample]
	failure atomic.Pointer[captureFailure]
}

type captureFailure struct {
	err error
}

type ListenerOption func(*Listener)

func WithBufferSize(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

// WithMaxSampleAge sets how long a sample stays current. Zero keeps samples
// until the next one replaces them.
func WithMaxSampleAge(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d >= 0 {
			l.maxAge = d
		}
	}
}

// WithListenerClock replaces time.Now for sample timestamps.
func WithListenerClock(now func() time.Time) ListenerOption {
	return func(l *Listener) {
		l.now = now
	}
}

func WithLogger(log Logger) ListenerOption {
	return func(l *Listener) {
		l.log = log
	}
}

func NewListener(detector *Detector, opts ...ListenerOption) *Listener {
	if detector == nil {
		detector = NewDetector(DefaultSampleRate)
	}
	l := &Listener{
		detector:   detector,
		bufferSize: DefaultBufferSize,
		maxAge:     DefaultMaxSampleAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.GetLogger().With("pitch")
	}
	return l
}

// Start opens dev and begins capturing. Any previous session is fully
// released first. On failure no stream is left open.
func (l *Listener) Start(dev audio.Device) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	if dev == nil {
		return fmt.Errorf("starting capture: %w", audio.ErrDeviceUnavailable)
	}

	stream, err := dev.Open(l.detector.SampleRate(), l.bufferSize)
	if err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	l.stream = stream
	l.failure.Store(nil)
	l.running.Store(true)
	l.wg.Add(1)
	go l.capture(stream)

	l.log.Infof("Capture started (%d Hz, %d samples/buffer)", l.detector.SampleRate(), l.bufferSize)
	return nil
}

func (l *Listener) capture(stream audio.Stream) {
	defer l.wg.Done()

	buf := make([]float64, l.bufferSize)
	for l.running.Load() {
		n, err := stream.Read(buf)
		if n > 0 {
			sample := l.detector.Analyze(buf[:n])
			sample.At = l.now()
			l.latest.Store(sample)
		}
		if err != nil {
			if !errors.Is(err, audio.ErrStreamClosed) && !errors.Is(err, io.EOF) {
				l.log.Warnf("Capture read failed: %v", err)
				l.latest.Store(nil)
				l.failure.Store(&captureFailure{err: fmt.Errorf("%w: %w", ErrCaptureFailed, err)})
			}
			return
		}
	}
}

// Stop ends the session: it clears the running flag, interrupts the pending
// read, joins the capture goroutine and releases the stream. It is safe to
// call repeatedly and when nothing was started.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Listener) stopLocked() {
	if l.stream == nil {
		return
	}

	l.running.Store(false)
	if err := l.stream.Stop(); err != nil {
		l.log.Debugf("Stopping stream: %v", err)
	}
	l.wg.Wait()
	if err := l.stream.Close(); err != nil {
		l.log.Warnf("Releasing stream: %v", err)
	}
	l.stream = nil
	l.latest.Store(nil)
	l.failure.Store(nil)

	l.log.Infof("Capture stopped")
}

// Latest returns the newest sample, or nil when nothing has been captured
// recently. A stalled device therefore reads as silence.
func (l *Listener) Latest() *model.PitchSample {
	sample := l.latest.Load()
	if sample == nil {
		return nil
	}
	if l.maxAge > 0 && l.now().Sub(sample.At) > l.maxAge {
		return nil
	}
	return sample
}

// Err returns the read error that ended the current session, wrapping
// ErrCaptureFailed. It is nil while capture is healthy, after a clean end of
// stream and after Stop.
func (l *Listener) Err() error {
	if f := l.failure.Load(); f != nil {
		return f.err
	}
	return nil
}

// Active reports whether a capture session is open.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stream != nil
}
