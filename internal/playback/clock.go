package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/himanishpuri/KaraokeCore/internal/audio"
	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

// ClockPlayer keeps media time against the wall clock without producing
// sound. The song length comes from the WAV header of the song asset, or from
// the fallback duration when the asset cannot be probed.
type ClockPlayer struct {
	mu       sync.Mutex
	now      func() time.Time
	fallback time.Duration
	log      Logger

	duration  time.Duration
	offset    time.Duration
	startedAt time.Time
	speed     float64
	loaded    bool
	running   bool
	paused    bool

	timer    *time.Timer
	gen      uint64
	listener func(Event)
}

type ClockOption func(*ClockPlayer)

// WithClock replaces time.Now for position calculations.
func WithClock(now func() time.Time) ClockOption {
	return func(p *ClockPlayer) {
		p.now = now
	}
}

// WithFallbackDuration is used for assets that are not readable WAV files.
func WithFallbackDuration(d time.Duration) ClockOption {
	return func(p *ClockPlayer) {
		p.fallback = d
	}
}

func WithPlayerLogger(log Logger) ClockOption {
	return func(p *ClockPlayer) {
		p.log = log
	}
}

func NewClockPlayer(opts ...ClockOption) *ClockPlayer {
	p := &ClockPlayer{
		now:   time.Now,
		speed: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.GetLogger().With("playback")
	}
	return p
}

func (p *ClockPlayer) Load(song *model.Song) error {
	p.Stop()

	if song == nil {
		return ErrNotLoaded
	}

	d := p.fallback
	info, err := audio.ProbeWav(song.SongPath)
	switch {
	case err == nil:
		d = info.Duration
	case p.fallback > 0:
		p.log.Warnf("Cannot probe %s, using %v: %v", song.SongPath, p.fallback, err)
	default:
		return fmt.Errorf("loading %s: %w", song.SongPath, err)
	}

	p.mu.Lock()
	p.duration = d
	p.offset = 0
	p.loaded = true
	p.mu.Unlock()

	p.log.Debugf("Loaded %s (%v)", song.Number, d)
	return nil
}

func (p *ClockPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return ErrNotLoaded
	}
	p.offset = 0
	p.startedAt = p.now()
	p.running = true
	p.paused = false
	p.scheduleLocked()
	return nil
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.paused {
		return
	}
	p.offset = p.positionLocked()
	p.paused = true
	p.cancelLocked()
}

func (p *ClockPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || !p.paused {
		return
	}
	p.startedAt = p.now()
	p.paused = false
	p.scheduleLocked()
}

func (p *ClockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelLocked()
	p.running = false
	p.paused = false
	p.offset = 0
}

func (p *ClockPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked().Seconds()
}

func (p *ClockPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration.Seconds()
}

func (p *ClockPlayer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && !p.paused
}

func (p *ClockPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.paused
}

func (p *ClockPlayer) SetListener(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

func (p *ClockPlayer) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetSpeed changes the rate at which media time advances. Non-positive
// values are ignored.
func (p *ClockPlayer) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running && !p.paused {
		p.offset = p.positionLocked()
		p.startedAt = p.now()
		p.speed = speed
		p.scheduleLocked()
		return
	}
	p.speed = speed
}

func (p *ClockPlayer) positionLocked() time.Duration {
	pos := p.offset
	if p.running && !p.paused {
		pos += time.Duration(float64(p.now().Sub(p.startedAt)) * p.speed)
	}
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *ClockPlayer) scheduleLocked() {
	p.cancelLocked()

	remaining := p.duration - p.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	gen := p.gen
	p.timer = time.AfterFunc(time.Duration(float64(remaining)/p.speed), func() {
		p.complete(gen)
	})
}

// cancelLocked stops the completion timer and invalidates any callback
// already in flight.
func (p *ClockPlayer) cancelLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *ClockPlayer) complete(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.running || p.paused {
		p.mu.Unlock()
		return
	}
	p.offset = p.duration
	p.running = false
	p.timer = nil
	fn := p.listener
	p.mu.Unlock()

	if fn != nil {
		fn(Event{Kind: EventCompleted})
	}
}
