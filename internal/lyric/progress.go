package lyric

import "github.com/himanishpuri/KaraokeCore/internal/model"

// Progress returns how much of group has been sung at time t, in [0, 1].
// Every glyph is given the same width regardless of its text.
func Progress(group model.LyricGroup, t float64) float64 {
	n := len(group)
	if n == 0 || t < group[0].Start {
		return 0
	}
	if t >= group[n-1].End {
		return 1
	}

	// last glyph that has started; between glyphs it is the one that just ended
	idx := 0
	for i := range group {
		if group[i].Start > t {
			break
		}
		idx = i
	}

	node := group[idx]
	within := 1.0
	if span := node.End - node.Start; span > 0 {
		within = clamp01((t - node.Start) / span)
	}
	return clamp01((float64(idx) + within) / float64(n))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
