package session

import (
	"time"

	"github.com/himanishpuri/KaraokeCore/internal/judgement"
	"github.com/himanishpuri/KaraokeCore/internal/lyric"
	"github.com/himanishpuri/KaraokeCore/internal/pitch"
)

const (
	DefaultTickRate      = 60
	DefaultScoreDisplay  = 10 * time.Second
	DefaultSelectorHide  = 5 * time.Second
	DigitBufferSize      = 6
	FastSpeed            = 5.0
	metaRefresh          = 0.5
	playbackEventBacklog = 8
)

// Logger is the logging surface used by the controller.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

type Config struct {
	TickRate      int
	ScoreDisplay  time.Duration
	SelectorHide  time.Duration
	Now           func() time.Time
	Logger        Logger
	Listener      *pitch.Listener
	LyricOptions  []lyric.CompileOption
	JudgeOptions  []judgement.Option
	OnDeviceError func(error)
}

type Option func(*Config)

// WithTickRate sets how many times per second Run ticks.
func WithTickRate(hz int) Option {
	return func(c *Config) {
		if hz > 0 {
			c.TickRate = hz
		}
	}
}

// WithScoreDisplay sets how long the final score stays up before the queue
// advances.
func WithScoreDisplay(d time.Duration) Option {
	return func(c *Config) {
		c.ScoreDisplay = d
	}
}

// WithSelectorHide sets how long the song selector lingers after key input
// while a song is playing.
func WithSelectorHide(d time.Duration) Option {
	return func(c *Config) {
		c.SelectorHide = d
	}
}

// WithClock replaces time.Now for timers.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithPitchListener supplies the capture listener, e.g. one built with a
// custom detector or buffer size.
func WithPitchListener(l *pitch.Listener) Option {
	return func(c *Config) {
		c.Listener = l
	}
}

func WithLyricOptions(opts ...lyric.CompileOption) Option {
	return func(c *Config) {
		c.LyricOptions = append(c.LyricOptions, opts...)
	}
}

func WithJudgementOptions(opts ...judgement.Option) Option {
	return func(c *Config) {
		c.JudgeOptions = append(c.JudgeOptions, opts...)
	}
}

// WithDeviceErrorHandler is called when the capture device cannot be opened
// for a song or stops delivering audio mid-song. Playback continues without
// scoring.
func WithDeviceErrorHandler(fn func(error)) Option {
	return func(c *Config) {
		c.OnDeviceError = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		TickRate:     DefaultTickRate,
		ScoreDisplay: DefaultScoreDisplay,
		SelectorHide: DefaultSelectorHide,
		Now:          time.Now,
	}
}
