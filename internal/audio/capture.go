package audio

import "errors"

var (
	// ErrDeviceUnavailable wraps every failure to acquire a capture device
	// (busy, permission denied, unsupported configuration).
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
	// ErrStreamClosed is returned by Read once a stream has been stopped.
	ErrStreamClosed = errors.New("audio stream closed")
)

// Device opens capture streams of mono samples normalized to [-1, 1].
type Device interface {
	Open(sampleRate, bufferSize int) (Stream, error)
}

// Stream is one open capture session.
//
// Read blocks until buf is full or the stream is stopped. Stop interrupts a
// pending Read and halts delivery; Close releases the underlying handle.
// Stop and Close are idempotent.
type Stream interface {
	Read(buf []float64) (int, error)
	Stop() error
	Close() error
}
