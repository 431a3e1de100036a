package judgement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func detected(note int) *model.PitchSample {
	return &model.PitchSample{Frequency: 1, Note: note}
}

func TestEngineHitWithinWindow(t *testing.T) {
	e := NewEngine()
	e.Load([]model.JudgementNode{{Note: 60, Start: 2.0, End: 2.5}})

	if score := e.Update(detected(60), 2.3); score != 100 {
		t.Errorf("Expected score 100, got %d", score)
	}
	if !e.Nodes()[0].Hit {
		t.Error("Node should be hit")
	}
	if hit, total := e.Hits(); hit != 1 || total != 1 {
		t.Errorf("Expected 1/1 hits, got %d/%d", hit, total)
	}
}

func TestEngineOverlapRules(t *testing.T) {
	tests := []struct {
		name string
		node model.JudgementNode
		t    float64
		hit  bool
	}{
		{"start inside window", model.JudgementNode{Note: 60, Start: 1.5, End: 5}, 2, true},
		{"end inside window", model.JudgementNode{Note: 60, Start: 0.2, End: 1.5}, 2, true},
		{"window inside node", model.JudgementNode{Note: 60, Start: 0, End: 10}, 5, true},
		{"node after tick", model.JudgementNode{Note: 60, Start: 2.1, End: 3}, 2, false},
		{"node before window", model.JudgementNode{Note: 60, Start: 0.2, End: 0.9}, 2, false},
		{"window clamped at zero", model.JudgementNode{Note: 60, Start: 0, End: 0.1}, 0.5, true},
		{"late credit up to delay", model.JudgementNode{Note: 60, Start: 3, End: 3.2}, 4.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			e.Load([]model.JudgementNode{tt.node})
			e.Update(detected(60), tt.t)
			if got := e.Nodes()[0].Hit; got != tt.hit {
				t.Errorf("Expected hit=%v, got %v", tt.hit, got)
			}
		})
	}
}

func TestEngineOctaveFolding(t *testing.T) {
	nodes := []model.JudgementNode{{Note: 60, Start: 1, End: 2}}

	folded := NewEngine()
	folded.Load(nodes)
	folded.Update(detected(72), 1.5)
	if !folded.Nodes()[0].Hit {
		t.Error("Note 72 should match node 60 with octave folding")
	}

	exact := NewEngine(WithIgnoreOctaves(false))
	exact.Load(nodes)
	exact.Update(detected(72), 1.5)
	if exact.Nodes()[0].Hit {
		t.Error("Note 72 should not match node 60 without octave folding")
	}
	exact.Update(detected(60), 1.5)
	if !exact.Nodes()[0].Hit {
		t.Error("Exact note should match")
	}

	// folding only covers the supported note range
	low := NewEngine()
	low.Load([]model.JudgementNode{{Note: 24, Start: 1, End: 2}})
	low.Update(detected(36), 1.5)
	if low.Nodes()[0].Hit {
		t.Error("Node below the folded range should not match")
	}

	toggled := NewEngine()
	toggled.SetIgnoreOctaves(false)
	if toggled.IgnoreOctaves() {
		t.Error("SetIgnoreOctaves(false) not applied")
	}
}

func TestEngineScoreRounding(t *testing.T) {
	e := NewEngine()
	e.Load([]model.JudgementNode{
		{Note: 60, Start: 1, End: 2},
		{Note: 62, Start: 3, End: 4},
		{Note: 64, Start: 5, End: 6},
	})

	if score := e.Update(detected(60), 1.5); score != 33 {
		t.Errorf("Expected 33, got %d", score)
	}
	if score := e.Update(detected(62), 3.5); score != 67 {
		t.Errorf("Expected 67, got %d", score)
	}

	// no pitch leaves everything as is
	if score := e.Update(&model.PitchSample{}, 5.5); score != 67 {
		t.Errorf("Expected 67 after silence, got %d", score)
	}
	if score := e.Update(nil, 5.5); score != 67 {
		t.Errorf("Expected 67 after nil sample, got %d", score)
	}
}

func TestEngineHitIsWriteOnce(t *testing.T) {
	e := NewEngine()
	e.Load([]model.JudgementNode{{Note: 60, Start: 1, End: 2}, {Note: 61, Start: 5, End: 6}})

	for i := 0; i < 10; i++ {
		e.Update(detected(60), 1.5)
	}
	if hit, _ := e.Hits(); hit != 1 {
		t.Errorf("Repeated matches should count once, got %d", hit)
	}
	if e.Score() != 50 {
		t.Errorf("Expected 50, got %d", e.Score())
	}
}

func TestEngineResetScore(t *testing.T) {
	e := NewEngine()
	e.Load([]model.JudgementNode{{Note: 60, Start: 1, End: 2}})
	e.Update(detected(60), 1.5)

	e.ResetScore()
	if e.Score() != 0 {
		t.Errorf("Expected score 0 after reset, got %d", e.Score())
	}
	for _, n := range e.Nodes() {
		if n.Hit {
			t.Error("Hit flags should be cleared")
		}
	}

	e.Update(detected(60), 1.5)
	if e.Score() != 100 {
		t.Errorf("Node should be creditable again after reset, got %d", e.Score())
	}
}

func TestEngineNoNodes(t *testing.T) {
	e := NewEngine()
	if score := e.Update(detected(60), 1); score != 0 {
		t.Errorf("Expected 0 without nodes, got %d", score)
	}

	e.Load([]model.JudgementNode{{Note: 60, Start: 0, End: 1}})
	e.Update(detected(60), 0.5)
	e.Clear()
	if hit, total := e.Hits(); hit != 0 || total != 0 || e.Score() != 0 {
		t.Errorf("Clear should drop everything, got %d/%d score %d", hit, total, e.Score())
	}
}

func TestEngineLoadCopies(t *testing.T) {
	nodes := []model.JudgementNode{{Note: 60, Start: 1, End: 2, Hit: true}}

	e := NewEngine()
	e.Load(nodes)
	if e.Nodes()[0].Hit {
		t.Error("Load should start with clear hit flags")
	}
	nodes[0].Note = 10
	if e.Nodes()[0].Note != 60 {
		t.Error("Engine should not alias the caller's slice")
	}
}

func TestWithMicDelay(t *testing.T) {
	e := NewEngine(WithMicDelay(0.1))
	e.Load([]model.JudgementNode{{Note: 60, Start: 3, End: 3.2}})

	e.Update(detected(60), 4.0)
	if e.Nodes()[0].Hit {
		t.Error("Node outside the shorter window should not be hit")
	}
}

func TestComment(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "Your voice cannot be heard"},
		{1, "You need to practice more"},
		{50, "You need to practice more"},
		{51, "Not bad"},
		{70, "Not bad"},
		{71, "Good job"},
		{90, "Good job"},
		{91, "Perfect score"},
		{100, "Perfect score"},
	}
	for _, tt := range tests {
		if got := Comment(tt.score); got != tt.want {
			t.Errorf("Comment(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestLoadJudgementTrack(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "judgement.json")
	content := `[{"n":60,"s":2.0,"e":2.5},{"n":62,"s":3,"e":3.5,"hit":true}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	nodes, err := LoadJudgementTrack(path)
	if err != nil {
		t.Fatalf("LoadJudgementTrack failed: %v", err)
	}
	if len(nodes) != 2 || nodes[0].Note != 60 || nodes[0].Start != 2.0 || nodes[0].End != 2.5 {
		t.Fatalf("Unexpected nodes: %+v", nodes)
	}
	if nodes[1].Hit {
		t.Error("Hit flags must not be read from the file")
	}

	if nodes, err := LoadJudgementTrack(""); err != nil || nodes != nil {
		t.Errorf("Empty path should yield no data, got %v, %v", nodes, err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"n":`), 0o644)
	if _, err := LoadJudgementTrack(bad); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	if _, err := LoadJudgementTrack(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadMIDITrack(t *testing.T) {
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(960, midi.NoteOn(0, 60, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 64, 90))
	// note-on with zero velocity ends the note
	tr.Add(480, midi.NoteOn(0, 64, 0))
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)
	if err := s.Add(tr); err != nil {
		t.Fatalf("Adding track failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "melody.mid")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("Writing midi fixture failed: %v", err)
	}

	nodes, err := LoadJudgementTrack(path)
	if err != nil {
		t.Fatalf("LoadJudgementTrack failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d: %+v", len(nodes), nodes)
	}

	want := []model.JudgementNode{
		{Note: 60, Start: 0.5, End: 1.0},
		{Note: 64, Start: 1.0, End: 1.25},
	}
	for i, w := range want {
		got := nodes[i]
		if got.Note != w.Note || abs(got.Start-w.Start) > 1e-3 || abs(got.End-w.End) > 1e-3 {
			t.Errorf("Node %d: expected %+v, got %+v", i, w, got)
		}
	}

	if _, err := LoadMIDITrack(filepath.Join(t.TempDir(), "missing.mid"), AllTracks); err == nil {
		t.Error("Expected error for missing midi file")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
