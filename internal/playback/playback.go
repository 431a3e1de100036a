package playback

import (
	"errors"

	"github.com/himanishpuri/KaraokeCore/internal/model"
)

var ErrNotLoaded = errors.New("no song loaded")

type EventKind int

const (
	EventCompleted EventKind = iota
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to the listener when playback ends on its own.
type Event struct {
	Kind EventKind
	Err  error
}

// Playback is the media clock a session drives. Implementations may invoke
// the listener from any goroutine, but never while holding their own locks.
type Playback interface {
	Load(song *model.Song) error
	Start() error
	Pause()
	Resume()
	Stop()

	// Position and Duration are in seconds.
	Position() float64
	Duration() float64

	// Running is true while media time advances.
	Running() bool
	Paused() bool

	SetListener(fn func(Event))
}

// SpeedSetter is implemented by players that can change their rate.
type SpeedSetter interface {
	Speed() float64
	SetSpeed(speed float64)
}

// Logger is the logging surface used by players.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}
