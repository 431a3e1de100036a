package lyric

import (
	"sort"

	"github.com/himanishpuri/KaraokeCore/internal/model"
)

// Timing constants, in seconds.
const (
	// LeadIn is how long before a line starts it is shown, and how long before
	// the first line the title card is hidden.
	LeadIn = 3.0
	// CooldownGap is the silence between two lines that triggers a countdown
	// and, past the first two lines, a cooldown screen.
	CooldownGap = 8.0
	// CooldownPad separates the cooldown screen from the surrounding lines.
	CooldownPad = 3.0
	// DefaultTransitionFraction places an alternating line change at the
	// midpoint of the line displayed before it.
	DefaultTransitionFraction = 0.5
)

// FrameKind tags a Frame.
type FrameKind int

const (
	TitleShow FrameKind = iota
	TitleHide
	Countdown
	LyricTop
	LyricBottom
	CooldownStart
	CooldownEnd
)

func (k FrameKind) String() string {
	switch k {
	case TitleShow:
		return "TitleShow"
	case TitleHide:
		return "TitleHide"
	case Countdown:
		return "Countdown"
	case LyricTop:
		return "LyricTop"
	case LyricBottom:
		return "LyricBottom"
	case CooldownStart:
		return "CooldownStart"
	case CooldownEnd:
		return "CooldownEnd"
	default:
		return "Unknown"
	}
}

// Metadata is what the title card shows.
type Metadata struct {
	Title    string
	Artist   string
	Charter  string
	Lyricist string
}

// MetadataFromSong fills blanks with "Unknown ..." placeholders.
func MetadataFromSong(song *model.Song) Metadata {
	m := Metadata{
		Title:    "Unknown title",
		Artist:   "Unknown artist",
		Charter:  "Unknown charter",
		Lyricist: "Unknown lyricist",
	}
	if song == nil {
		return m
	}
	if song.Title != "" {
		m.Title = song.Title
	}
	if song.Artist != "" {
		m.Artist = song.Artist
	}
	if song.Charter != "" {
		m.Charter = song.Charter
	}
	if song.Lyricist != "" {
		m.Lyricist = song.Lyricist
	}
	return m
}

// Frame is a one-shot display event. Line is meaningful for LyricTop and
// LyricBottom, Value for Countdown and Meta for TitleShow.
type Frame struct {
	Kind  FrameKind
	Time  float64
	Line  int
	Value float64
	Meta  *Metadata

	fired bool
}

// Fired reports whether the frame has already been applied.
func (f *Frame) Fired() bool {
	return f.fired
}

// Cadence selects the countdown steps emitted before a line.
type Cadence int

const (
	// CountdownTenths counts 3, 2, 1 and then 0.9 down to 0.0.
	CountdownTenths Cadence = iota
	// CountdownWhole counts 3, 2, 1, 0.
	CountdownWhole
)

type compileConfig struct {
	fraction float64
	cadence  Cadence
}

type CompileOption func(*compileConfig)

// WithTransitionFraction sets where inside the previous line an alternating
// line change happens. Values outside [0, 1] are ignored.
func WithTransitionFraction(f float64) CompileOption {
	return func(c *compileConfig) {
		if f >= 0 && f <= 1 {
			c.fraction = f
		}
	}
}

func WithCountdownCadence(cadence Cadence) CompileOption {
	return func(c *compileConfig) {
		c.cadence = cadence
	}
}

// Compile turns lyric groups into a time-sorted frame list. Empty or nil
// input compiles to no frames.
func Compile(groups []model.LyricGroup, meta Metadata, opts ...CompileOption) []Frame {
	cfg := compileConfig{fraction: DefaultTransitionFraction, cadence: CountdownTenths}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(groups) == 0 {
		return nil
	}

	var frames []Frame
	add := func(kind FrameKind, at float64, line int) {
		frames = append(frames, Frame{Kind: kind, Time: at, Line: line})
	}

	first := groups[0].Start()

	if first >= LeadIn {
		m := meta
		frames = append(frames, Frame{Kind: TitleShow, Time: 0, Meta: &m})
		add(TitleHide, first-LeadIn, 0)
	}

	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		if i > 0 {
			prev := groups[i-1]
			if len(prev) == 0 || g.Start()-prev.End() <= CooldownGap {
				continue
			}
		}
		frames = append(frames, countdown(g.Start(), cfg.cadence)...)
	}

	if len(groups[0]) > 0 {
		add(LyricTop, first-LeadIn, 0)
	}
	if len(groups) > 1 && len(groups[1]) > 0 {
		add(LyricBottom, first-LeadIn, 1)
	}

	bottomNext := false
	skipNext := false
	for i := 2; i < len(groups); i++ {
		prev, cur := groups[i-1], groups[i]
		if len(prev) == 0 || len(cur) == 0 {
			continue
		}

		if cur.Start()-prev.End() > CooldownGap {
			end := cur.Start() - CooldownPad
			add(CooldownStart, prev.End()+CooldownPad, 0)
			add(CooldownEnd, end, 0)
			add(LyricTop, end, i)

			skipNext = false
			if i+1 < len(groups) && len(groups[i+1]) > 0 {
				add(LyricBottom, end, i+1)
				skipNext = true
			}
			bottomNext = false
			continue
		}

		// the line was already placed when the cooldown ended
		if skipNext {
			skipNext = false
			continue
		}

		at := prev.Start() + cfg.fraction*(prev.End()-prev.Start())
		if bottomNext {
			add(LyricBottom, at, i)
		} else {
			add(LyricTop, at, i)
		}
		bottomNext = !bottomNext
	}

	sort.SliceStable(frames, func(a, b int) bool {
		return frames[a].Time < frames[b].Time
	})
	return frames
}

func countdown(start float64, cadence Cadence) []Frame {
	var frames []Frame
	for n := 3; n >= 1; n-- {
		frames = append(frames, Frame{Kind: Countdown, Time: start - float64(n), Value: float64(n)})
	}

	if cadence == CountdownWhole {
		return append(frames, Frame{Kind: Countdown, Time: start, Value: 0})
	}
	for tenth := 9; tenth >= 0; tenth-- {
		v := float64(tenth) / 10
		frames = append(frames, Frame{Kind: Countdown, Time: start - v, Value: v})
	}
	return frames
}
