package lyric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/himanishpuri/KaraokeCore/internal/model"
)

// LoadLyricTrack reads a lyric track file: an array of lines, each an array of
// {t, s, e} glyphs. An empty path or an empty file yields no groups and no error.
func LoadLyricTrack(path string) ([]model.LyricGroup, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lyric track: %w", err)
	}
	return ParseLyricTrack(data)
}

// ParseLyricTrack decodes lyric track JSON. Glyphs with End before Start are
// clamped so that every node satisfies Start <= End.
func ParseLyricTrack(data []byte) ([]model.LyricGroup, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var groups []model.LyricGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parsing lyric track: %w", err)
	}

	for _, g := range groups {
		for i := range g {
			if g[i].End < g[i].Start {
				g[i].End = g[i].Start
			}
		}
	}
	return groups, nil
}
