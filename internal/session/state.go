package session

import (
	"fmt"

	"github.com/himanishpuri/KaraokeCore/internal/lyric"
	"github.com/himanishpuri/KaraokeCore/internal/model"
)

type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Completed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Key is a user input understood by HandleKey. Key0 through Key9 are digits.
type Key int

const (
	Key0 Key = iota
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyEnter
	KeyNext
	KeyEscape
	KeySpeed
	KeyPause
)

// DigitKey returns the key for d, which must be in 0..9.
func DigitKey(d int) Key {
	return Key0 + Key(d)
}

func (k Key) digit() (byte, bool) {
	if k >= Key0 && k <= Key9 {
		return byte('0' + int(k-Key0)), true
	}
	return 0, false
}

// Selector is the song number entry overlay.
type Selector struct {
	Visible bool
	Number  string
	Title   string
	Found   bool
}

// Scoreboard is shown after a song completes.
type Scoreboard struct {
	Visible bool
	Score   int
	Comment string
}

// RenderState is everything a presentation layer needs for one frame.
type RenderState struct {
	State         State
	Song          *model.Song
	PerformanceID string
	Position      float64
	Duration      float64
	Meta          string
	Queue         []string
	Fast          bool

	Selector   Selector
	Lyrics     lyric.RenderData
	Scoreboard Scoreboard

	JudgementEnabled bool
	Score            int
	Hits             int
	Total            int
	Volume           int
	Note             string
}

// HitText is the running "Hit: h/t" readout.
func (r RenderState) HitText() string {
	return fmt.Sprintf("Hit: %d/%d", r.Hits, r.Total)
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func metaLine(song *model.Song, pos, dur float64) string {
	title := "Unknown title"
	if song != nil && song.Title != "" {
		title = song.Title
	}
	return fmt.Sprintf("Playing: %s (%s/%s)", title, formatClock(pos), formatClock(dur))
}
