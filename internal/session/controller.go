package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/KaraokeCore/internal/audio"
	"github.com/himanishpuri/KaraokeCore/internal/judgement"
	"github.com/himanishpuri/KaraokeCore/internal/library"
	"github.com/himanishpuri/KaraokeCore/internal/lyric"
	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/internal/pitch"
	"github.com/himanishpuri/KaraokeCore/internal/playback"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

var ErrNoSong = errors.New("no song")

type playbackEvent struct {
	gen uint64
	ev  playback.Event
}

// Controller owns the queue and the per-song engines. All state changes
// happen under one lock, either from Tick or from the public operations, so
// the engines see a single logical thread. Playback callbacks only enqueue
// events that the next Tick applies.
type Controller struct {
	cfg      *Config
	log      Logger
	lib      library.Library
	player   playback.Playback
	device   audio.Device
	listener *pitch.Listener
	judge    *judgement.Engine
	events   chan playbackEvent

	mu      sync.Mutex
	pending []func()

	state         State
	queue         []*model.Song
	current       *model.Song
	performanceID string
	songGen       uint64
	lyrics        *lyric.Scheduler
	judging       bool
	fast          bool

	position float64
	duration float64
	meta     string
	metaAt   float64

	digits          [DigitBufferSize]byte
	found           *model.Song
	selectorVisible bool
	selectorHideAt  time.Time

	scoreVisible bool
	finalScore   int
	scoreHideAt  time.Time
}

// NewController wires a session. lib may be nil when songs are only ever
// enqueued directly; device may be nil to run without scoring.
func NewController(lib library.Library, player playback.Playback, device audio.Device, opts ...Option) *Controller {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("session")
	}
	if cfg.Listener == nil {
		cfg.Listener = pitch.NewListener(nil)
	}

	c := &Controller{
		cfg:             cfg,
		log:             cfg.Logger,
		lib:             lib,
		player:          player,
		device:          device,
		listener:        cfg.Listener,
		judge:           judgement.NewEngine(cfg.JudgeOptions...),
		events:          make(chan playbackEvent, playbackEventBacklog),
		selectorVisible: true,
	}
	c.resetDigitsLocked()
	return c
}

// unlock releases the lock and then runs callbacks queued while it was held.
func (c *Controller) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Enqueue appends song to the queue and starts it at once if the queue was
// empty.
func (c *Controller) Enqueue(song *model.Song) error {
	if song == nil {
		return ErrNoSong
	}
	c.mu.Lock()
	defer c.unlock()
	c.enqueueLocked(song)
	return nil
}

// EnqueueNumber looks up a catalog number and enqueues the song.
func (c *Controller) EnqueueNumber(number string) error {
	if c.lib == nil {
		return fmt.Errorf("enqueue %s: %w", number, ErrNoSong)
	}
	song, err := c.lib.FindByNumber(number)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", number, err)
	}
	return c.Enqueue(song)
}

func (c *Controller) enqueueLocked(song *model.Song) {
	c.queue = append(c.queue, song)
	c.log.Infof("Queued %s (%d in queue)", song, len(c.queue))
	if len(c.queue) == 1 {
		c.playSongLocked(song)
	}
}

// SkipToNext stops the current song, drops the queue head and plays the next
// one. With nothing left the session returns to Idle with the selector shown.
func (c *Controller) SkipToNext() {
	c.mu.Lock()
	defer c.unlock()
	c.skipLocked()
}

func (c *Controller) skipLocked() {
	c.stopSongLocked()
	if len(c.queue) > 0 {
		c.queue = append([]*model.Song(nil), c.queue[1:]...)
	}
	if len(c.queue) > 0 {
		c.playSongLocked(c.queue[0])
		return
	}
	c.state = Idle
	c.setSelectorVisibleLocked(true)
}

// playSongLocked releases everything bound to the previous song before
// binding the engines to the new one.
func (c *Controller) playSongLocked(song *model.Song) {
	c.stopSongLocked()

	c.songGen++
	gen := c.songGen
	c.state = Loading
	c.current = song
	c.performanceID = uuid.NewString()
	c.log.Infof("Loading %s (performance %s)", song, c.performanceID)

	groups, err := lyric.LoadLyricTrack(song.LyricPath)
	if err != nil {
		c.log.Warnf("Lyrics unavailable for %s: %v", song.Number, err)
		groups = nil
	}
	c.lyrics = lyric.NewScheduler(groups, lyric.MetadataFromSong(song), c.cfg.LyricOptions...)

	nodes, err := judgement.LoadJudgementTrack(song.JudgementPath)
	if err != nil {
		c.log.Warnf("Judgement track unavailable for %s: %v", song.Number, err)
		nodes = nil
	}
	c.judge.Load(nodes)

	c.player.SetListener(func(ev playback.Event) {
		c.push(gen, ev)
	})
	if err := c.player.Load(song); err != nil {
		c.songErrorLocked(err)
		return
	}

	c.startCaptureLocked()

	if err := c.player.Start(); err != nil {
		c.songErrorLocked(err)
		return
	}

	c.state = Playing
	c.duration = c.player.Duration()
	c.meta = metaLine(song, 0, c.duration)
	c.metaAt = 0
	c.setSelectorVisibleLocked(false)
	c.log.Infof("Playing %s, %d lyric frames, %d judgement nodes, scoring %v",
		song.Number, len(c.lyrics.Frames()), len(nodes), c.judging)
}

func (c *Controller) startCaptureLocked() {
	c.judging = false
	if c.device == nil {
		c.log.Debugf("No capture device, judgement disabled")
		return
	}
	if err := c.listener.Start(c.device); err != nil {
		c.log.Warnf("Judgement disabled for %s: %v", c.current.Number, err)
		if fn := c.cfg.OnDeviceError; fn != nil {
			c.pending = append(c.pending, func() { fn(err) })
		}
		return
	}
	c.judging = true
}

// captureFailedLocked turns scoring off for the rest of the song after the
// capture device died mid-song. Playback carries on.
func (c *Controller) captureFailedLocked(err error) {
	c.judging = false
	c.listener.Stop()
	c.log.Warnf("Judgement disabled for %s: %v", c.current.Number, err)
	if fn := c.cfg.OnDeviceError; fn != nil {
		c.pending = append(c.pending, func() { fn(err) })
	}
}

// stopSongLocked halts media and capture and drops per-song state. Safe to
// call when nothing is playing.
func (c *Controller) stopSongLocked() {
	c.player.Stop()
	c.listener.Stop()
	c.judge.Clear()

	// invalidates callbacks from the stopped song
	c.songGen++

	if c.fast {
		if sp, ok := c.player.(playback.SpeedSetter); ok {
			sp.SetSpeed(1)
		}
		c.fast = false
	}

	c.lyrics = nil
	c.current = nil
	c.performanceID = ""
	c.judging = false
	c.position = 0
	c.duration = 0
	c.meta = ""
	c.metaAt = 0
	c.scoreVisible = false
	c.scoreHideAt = time.Time{}
}

func (c *Controller) push(gen uint64, ev playback.Event) {
	select {
	case c.events <- playbackEvent{gen: gen, ev: ev}:
	default:
		c.log.Warnf("Dropping playback %v event, backlog full", ev.Kind)
	}
}

func (c *Controller) drainEventsLocked(now time.Time) {
	for {
		select {
		case pe := <-c.events:
			if pe.gen != c.songGen || (c.state != Playing && c.state != Paused) {
				continue
			}
			switch pe.ev.Kind {
			case playback.EventCompleted:
				c.songCompletedLocked(now)
			case playback.EventError:
				c.songErrorLocked(pe.ev.Err)
			}
		default:
			return
		}
	}
}

func (c *Controller) songCompletedLocked(now time.Time) {
	c.listener.Stop()
	c.judging = false

	c.finalScore = c.judge.Score()
	hit, total := c.judge.Hits()
	c.state = Completed
	c.position = c.duration
	c.scoreVisible = true
	c.scoreHideAt = now.Add(c.cfg.ScoreDisplay)

	c.log.Infof("Finished %s (performance %s): score %d, hit %d/%d",
		c.current.Number, c.performanceID, c.finalScore, hit, total)
}

func (c *Controller) songErrorLocked(err error) {
	number := ""
	if c.current != nil {
		number = c.current.Number
	}
	c.log.Errorf("Playback of %s failed, skipping: %v", number, err)
	c.state = Error
	c.skipLocked()
}

// Tick advances the session to the current time: it applies playback events,
// expires timers, fires lyric frames and scores the latest pitch sample.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.unlock()

	now := c.cfg.Now()
	c.drainEventsLocked(now)

	if !c.selectorHideAt.IsZero() && !now.Before(c.selectorHideAt) {
		c.selectorHideAt = time.Time{}
		if c.state == Playing {
			c.selectorVisible = false
		}
	}

	if !c.scoreHideAt.IsZero() && !now.Before(c.scoreHideAt) {
		c.scoreHideAt = time.Time{}
		c.scoreVisible = false
		c.skipLocked()
	}

	if c.state != Playing {
		return
	}

	pos := c.player.Position()
	c.position = pos
	c.lyrics.Update(pos)
	if c.judging {
		if err := c.listener.Err(); err != nil {
			c.captureFailedLocked(err)
		} else {
			c.judge.Update(c.listener.Latest(), pos)
		}
	}
	if math.Abs(pos-c.metaAt) >= metaRefresh {
		c.meta = metaLine(c.current, pos, c.duration)
		c.metaAt = pos
	}
}

// Run ticks at the configured rate until ctx is done, then cleans up.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Cleanup()
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// HandleKey applies one key press and reports whether it was consumed. Any key
// restarts the selector hide delay while a song plays.
func (c *Controller) HandleKey(k Key) bool {
	c.mu.Lock()
	defer c.unlock()

	consumed := c.handleKeyLocked(k)
	c.selectorHideAt = time.Time{}
	c.armSelectorHideLocked(c.cfg.Now())
	return consumed
}

func (c *Controller) handleKeyLocked(k Key) bool {
	if d, ok := k.digit(); ok {
		copy(c.digits[:], c.digits[1:])
		c.digits[len(c.digits)-1] = d
		c.selectorVisible = true
		c.found = c.lookupLocked(string(c.digits[:]))
		return true
	}

	switch k {
	case KeyEnter:
		if c.found != nil {
			song := c.found
			c.found = nil
			c.resetDigitsLocked()
			c.enqueueLocked(song)
			c.setSelectorVisibleLocked(false)
		}
		return true
	case KeyNext:
		c.skipLocked()
		return true
	case KeyEscape:
		c.cleanupLocked()
		return true
	case KeySpeed:
		c.toggleSpeedLocked()
		return true
	case KeyPause:
		if c.state == Paused {
			c.resumeLocked()
		} else {
			c.pauseLocked()
		}
		return true
	}
	return false
}

// armSelectorHideLocked schedules a hide for a selector left up mid-song.
func (c *Controller) armSelectorHideLocked(now time.Time) {
	if c.selectorVisible && c.state == Playing {
		c.selectorHideAt = now.Add(c.cfg.SelectorHide)
	}
}

func (c *Controller) lookupLocked(number string) *model.Song {
	if c.lib == nil {
		return nil
	}
	song, err := c.lib.FindByNumber(number)
	if err != nil {
		if !errors.Is(err, library.ErrSongNotFound) {
			c.log.Warnf("Looking up %s: %v", number, err)
		}
		return nil
	}
	return song
}

func (c *Controller) resetDigitsLocked() {
	for i := range c.digits {
		c.digits[i] = '0'
	}
}

// setSelectorVisibleLocked never hides the selector while no song plays.
func (c *Controller) setSelectorVisibleLocked(visible bool) {
	c.selectorVisible = visible || c.state != Playing
	if !visible {
		c.selectorHideAt = time.Time{}
	}
}

func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.unlock()
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() error {
	if c.state != Playing {
		return ErrNoSong
	}
	c.player.Pause()
	c.state = Paused
	return nil
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.unlock()
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() error {
	if c.state != Paused {
		return ErrNoSong
	}
	c.player.Resume()
	c.state = Playing
	if c.selectorHideAt.IsZero() {
		c.armSelectorHideLocked(c.cfg.Now())
	}
	return nil
}

// ToggleSpeed flips between normal and fast playback and returns whether the
// song now plays fast. Players without speed control are left alone.
func (c *Controller) ToggleSpeed() bool {
	c.mu.Lock()
	defer c.unlock()
	return c.toggleSpeedLocked()
}

func (c *Controller) toggleSpeedLocked() bool {
	sp, ok := c.player.(playback.SpeedSetter)
	if !ok || (c.state != Playing && c.state != Paused) {
		return c.fast
	}
	if c.fast {
		sp.SetSpeed(1)
	} else {
		sp.SetSpeed(FastSpeed)
	}
	c.fast = !c.fast
	return c.fast
}

// Cleanup stops media and capture, cancels timers and empties the queue. It
// can be called any number of times from any state.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.unlock()
	c.cleanupLocked()
}

func (c *Controller) cleanupLocked() {
	c.stopSongLocked()
	c.queue = nil
	c.found = nil
	c.resetDigitsLocked()
	c.selectorHideAt = time.Time{}

	for len(c.events) > 0 {
		<-c.events
	}

	c.state = Idle
	c.selectorVisible = true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.unlock()
	return c.state
}

// Queue returns the queued catalog numbers, head first.
func (c *Controller) Queue() []string {
	c.mu.Lock()
	defer c.unlock()
	return c.queueNumbersLocked()
}

func (c *Controller) queueNumbersLocked() []string {
	out := make([]string, len(c.queue))
	for i, s := range c.queue {
		out[i] = s.Number
	}
	return out
}

// Render snapshots the session for the presentation layer.
func (c *Controller) Render() RenderState {
	c.mu.Lock()
	defer c.unlock()

	r := RenderState{
		State:         c.state,
		Song:          c.current,
		PerformanceID: c.performanceID,
		Position:      c.position,
		Duration:      c.duration,
		Meta:          c.meta,
		Queue:         c.queueNumbersLocked(),
		Fast:          c.fast,
		Selector: Selector{
			Visible: c.selectorVisible,
			Number:  string(c.digits[:]),
			Found:   c.found != nil,
		},
		Scoreboard: Scoreboard{
			Visible: c.scoreVisible,
			Score:   c.finalScore,
			Comment: judgement.Comment(c.finalScore),
		},
		JudgementEnabled: c.judging,
		Score:            c.judge.Score(),
	}
	if c.found != nil {
		r.Selector.Title = c.found.Title
	}
	r.Hits, r.Total = c.judge.Hits()

	if c.lyrics != nil {
		r.Lyrics = c.lyrics.Render(c.position)
	} else {
		r.Lyrics.Top.Index = lyric.NoLine
		r.Lyrics.Bottom.Index = lyric.NoLine
	}

	if sample := c.listener.Latest(); c.judging && sample != nil {
		r.Volume = sample.Volume
		if sample.Detected() {
			r.Note = pitch.NoteLabel(sample.Note)
		}
	}
	return r
}
