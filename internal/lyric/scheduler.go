package lyric

import (
	"fmt"
	"strconv"

	"github.com/himanishpuri/KaraokeCore/internal/model"
)

// NoLine marks an empty display slot.
const NoLine = -1

// State is what fired frames have left on screen.
type State struct {
	TitleVisible     bool
	Meta             Metadata
	Countdown        float64
	CountdownVisible bool
	CooldownVisible  bool
	Top              int
	Bottom           int
}

// Line is one display slot ready for rendering.
type Line struct {
	Index    int
	Text     string
	Visible  bool
	Progress float64
}

// RenderData is the plain-data view of the lyric display at one instant.
type RenderData struct {
	TitleVisible     bool
	Meta             Metadata
	CountdownVisible bool
	CountdownText    string
	CooldownVisible  bool
	Top              Line
	Bottom           Line
}

// Scheduler fires compiled frames against a monotonically increasing clock.
// It is not safe for concurrent use; the session tick loop owns it.
type Scheduler struct {
	groups []model.LyricGroup
	frames []Frame
	cursor int
	state  State
}

// NewScheduler compiles groups and returns a scheduler positioned at time zero.
func NewScheduler(groups []model.LyricGroup, meta Metadata, opts ...CompileOption) *Scheduler {
	return &Scheduler{
		groups: groups,
		frames: Compile(groups, meta, opts...),
		state:  State{Meta: meta, Top: NoLine, Bottom: NoLine},
	}
}

// Update fires every pending frame with Time <= t, in order, and returns how
// many fired. Frames never fire twice; earlier t values are ignored.
func (s *Scheduler) Update(t float64) int {
	fired := 0
	for s.cursor < len(s.frames) && s.frames[s.cursor].Time <= t {
		f := &s.frames[s.cursor]
		s.cursor++
		if f.fired {
			continue
		}
		f.fired = true
		s.apply(f)
		fired++
	}
	return fired
}

func (s *Scheduler) apply(f *Frame) {
	switch f.Kind {
	case TitleShow:
		s.state.TitleVisible = true
		if f.Meta != nil {
			s.state.Meta = *f.Meta
		}
	case TitleHide:
		s.state.TitleVisible = false
	case Countdown:
		s.state.Countdown = f.Value
		s.state.CountdownVisible = f.Value > 0
	case LyricTop:
		s.state.Top = f.Line
	case LyricBottom:
		s.state.Bottom = f.Line
	case CooldownStart:
		s.state.CooldownVisible = true
		s.state.Top = NoLine
		s.state.Bottom = NoLine
	case CooldownEnd:
		s.state.CooldownVisible = false
	}
}

// State returns a copy of the current display state.
func (s *Scheduler) State() State {
	return s.state
}

// Frames returns a copy of the compiled frames.
func (s *Scheduler) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Pending is the number of frames that have not fired yet.
func (s *Scheduler) Pending() int {
	return len(s.frames) - s.cursor
}

// Active reports whether there is anything to display at all.
func (s *Scheduler) Active() bool {
	return len(s.frames) > 0
}

// Render builds the display snapshot for time t. It does not fire frames.
func (s *Scheduler) Render(t float64) RenderData {
	return RenderData{
		TitleVisible:     s.state.TitleVisible,
		Meta:             s.state.Meta,
		CountdownVisible: s.state.CountdownVisible,
		CountdownText:    CountdownText(s.state.Countdown),
		CooldownVisible:  s.state.CooldownVisible,
		Top:              s.line(s.state.Top, t),
		Bottom:           s.line(s.state.Bottom, t),
	}
}

func (s *Scheduler) line(idx int, t float64) Line {
	if idx < 0 || idx >= len(s.groups) {
		return Line{Index: NoLine}
	}
	g := s.groups[idx]
	text := g.Text()
	return Line{
		Index:    idx,
		Text:     text,
		Visible:  text != "",
		Progress: Progress(g, t),
	}
}

// CountdownText formats a countdown value: whole numbers from 1 up, one
// decimal below 1, and nothing once it reaches zero.
func CountdownText(v float64) string {
	switch {
	case v >= 1:
		return strconv.Itoa(int(v))
	case v > 0:
		return fmt.Sprintf("%.1f", v)
	default:
		return ""
	}
}
