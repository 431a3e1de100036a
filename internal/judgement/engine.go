package judgement

import (
	"math"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/internal/pitch"
)

const (
	// DefaultMicDelay is the input latency, in seconds, absorbed by looking
	// back from the playback position.
	DefaultMicDelay = 1.0

	// Notes outside this range are never matched when octaves are folded.
	MinFoldedNote = 40
	MaxFoldedNote = 100
)

// Engine scores a performance against a song's judgement nodes. It is owned
// by the session tick loop and is not safe for concurrent use.
type Engine struct {
	nodes         []model.JudgementNode
	hits          int
	score         int
	micDelay      float64
	ignoreOctaves bool
}

type Option func(*Engine)

func WithMicDelay(seconds float64) Option {
	return func(e *Engine) {
		if seconds >= 0 {
			e.micDelay = seconds
		}
	}
}

// WithIgnoreOctaves toggles octave folding; it is on by default.
func WithIgnoreOctaves(ignore bool) Option {
	return func(e *Engine) {
		e.ignoreOctaves = ignore
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		micDelay:      DefaultMicDelay,
		ignoreOctaves: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the nodes with a fresh copy and zeroes the score.
func (e *Engine) Load(nodes []model.JudgementNode) {
	e.nodes = make([]model.JudgementNode, len(nodes))
	copy(e.nodes, nodes)
	e.ResetScore()
}

// Clear drops all nodes.
func (e *Engine) Clear() {
	e.nodes = nil
	e.hits = 0
	e.score = 0
}

// Update credits every unhit node that overlaps [t-micDelay, t] and matches
// the detected note, then returns the score. Samples without a pitch change
// nothing.
func (e *Engine) Update(sample *model.PitchSample, t float64) int {
	if !sample.Detected() || len(e.nodes) == 0 {
		return e.score
	}

	from := math.Max(0, t-e.micDelay)
	for i := range e.nodes {
		n := &e.nodes[i]
		if n.Hit || !e.matches(n.Note, sample.Note) || !overlaps(n, from, t) {
			continue
		}
		n.Hit = true
		e.hits++
	}

	e.score = int(math.Round(100 * float64(e.hits) / float64(len(e.nodes))))
	return e.score
}

func (e *Engine) matches(want, detected int) bool {
	if !e.ignoreOctaves {
		return want == detected
	}
	return want >= MinFoldedNote && want <= MaxFoldedNote &&
		pitch.PitchClass(want) == pitch.PitchClass(detected)
}

func overlaps(n *model.JudgementNode, from, to float64) bool {
	return (n.Start >= from && n.Start <= to) ||
		(n.End >= from && n.End <= to) ||
		(n.Start <= from && n.End >= to)
}

func (e *Engine) Score() int {
	return e.score
}

// Hits returns the number of credited nodes and the node count.
func (e *Engine) Hits() (hit, total int) {
	return e.hits, len(e.nodes)
}

// ResetScore clears every hit flag and zeroes the score.
func (e *Engine) ResetScore() {
	for i := range e.nodes {
		e.nodes[i].Hit = false
	}
	e.hits = 0
	e.score = 0
}

// Nodes returns a copy of the current nodes including hit flags.
func (e *Engine) Nodes() []model.JudgementNode {
	out := make([]model.JudgementNode, len(e.nodes))
	copy(out, e.nodes)
	return out
}

func (e *Engine) SetIgnoreOctaves(ignore bool) {
	e.ignoreOctaves = ignore
}

func (e *Engine) IgnoreOctaves() bool {
	return e.ignoreOctaves
}

// Comment is the remark shown with a final score.
func Comment(score int) string {
	switch {
	case score <= 0:
		return "Your voice cannot be heard"
	case score <= 50:
		return "You need to practice more"
	case score <= 70:
		return "Not bad"
	case score <= 90:
		return "Good job"
	default:
		return "Perfect score"
	}
}
