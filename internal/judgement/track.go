package judgement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// LoadJudgementTrack reads a judgement track. Files ending in .mid or .midi
// are imported with LoadMIDITrack; anything else is parsed as a JSON array of
// {n, s, e} nodes. An empty path yields no nodes and no error.
func LoadJudgementTrack(path string) ([]model.JudgementNode, error) {
	if path == "" {
		return nil, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		return LoadMIDITrack(path, AllTracks)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading judgement track: %w", err)
	}
	return ParseJudgementTrack(data)
}

// ParseJudgementTrack decodes judgement track JSON. Hit flags are never read
// from the file.
func ParseJudgementTrack(data []byte) ([]model.JudgementNode, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var nodes []model.JudgementNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parsing judgement track: %w", err)
	}
	return nodes, nil
}

// AllTracks makes LoadMIDITrack collect notes from every track.
const AllTracks = -1

// LoadMIDITrack turns the note-on/note-off pairs of a standard MIDI file into
// judgement nodes, timed in seconds through the file's tempo map. Pass a
// track number to import a single melody track.
func LoadMIDITrack(path string, track int) ([]model.JudgementNode, error) {
	var tracks []int
	if track >= 0 {
		tracks = []int{track}
	}

	// open notes keyed by track, channel and key
	type voice struct {
		track   int
		channel uint8
		key     uint8
	}
	open := make(map[voice]float64)
	var nodes []model.JudgementNode

	rd := smf.ReadTracks(path, tracks...).Do(func(ev smf.TrackEvent) {
		msg := midi.Message(ev.Message)
		at := float64(ev.AbsMicroSeconds) / 1e6

		var channel, key, velocity uint8
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			v := voice{ev.TrackNo, channel, key}
			if _, ok := open[v]; !ok {
				open[v] = at
			}
		case msg.GetNoteEnd(&channel, &key):
			v := voice{ev.TrackNo, channel, key}
			start, ok := open[v]
			if !ok {
				return
			}
			delete(open, v)
			nodes = append(nodes, model.JudgementNode{Note: int(key), Start: start, End: at})
		}
	})
	if err := rd.Error(); err != nil {
		return nil, fmt.Errorf("reading midi track: %w", err)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Start < nodes[j].Start
	})
	return nodes, nil
}
