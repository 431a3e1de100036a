package model

import (
	"strings"
	"time"
)

// Song is a fully-populated catalog entry. Asset paths are absolute once the
// library has resolved them against the song folder.
type Song struct {
	Number        string
	Title         string
	TitleTranslit string
	Artist        string
	Charter       string
	Lyricist      string
	SongPath      string
	BgPath        string
	LyricPath     string
	JudgementPath string
}

func (s *Song) String() string {
	return s.Number + " - " + s.Title + " - " + s.Artist
}

// LyricNode is one displayed glyph with its timing in seconds.
type LyricNode struct {
	Text  string  `json:"t"`
	Start float64 `json:"s"`
	End   float64 `json:"e"`
}

// LyricGroup is one displayed line.
type LyricGroup []LyricNode

// Text joins the glyphs of the line.
func (g LyricGroup) Text() string {
	var b strings.Builder
	for _, n := range g {
		b.WriteString(n.Text)
	}
	return b.String()
}

// Start returns the start of the first node, or 0 for an empty line.
func (g LyricGroup) Start() float64 {
	if len(g) == 0 {
		return 0
	}
	return g[0].Start
}

// End returns the end of the last node, or 0 for an empty line.
func (g LyricGroup) End() float64 {
	if len(g) == 0 {
		return 0
	}
	return g[len(g)-1].End
}

// JudgementNode is a timed reference pitch. Hit is write-once per scoring pass.
type JudgementNode struct {
	Note  int     `json:"n"`
	Start float64 `json:"s"`
	End   float64 `json:"e"`
	Hit   bool    `json:"-"`
}

// PitchSample is an immutable snapshot produced for every captured buffer.
// Frequency is 0 when no pitch was detected.
type PitchSample struct {
	Frequency float64
	Note      int
	Name      string
	Cents     int
	Volume    int
	// At is when the buffer finished capturing.
	At time.Time
}

// Detected reports whether the sample carries a pitch.
func (p *PitchSample) Detected() bool {
	return p != nil && p.Frequency > 0
}
