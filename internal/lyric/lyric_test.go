package lyric

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/himanishpuri/KaraokeCore/internal/model"
)

// line splits [start, end] evenly across the runes of text.
func line(start, end float64, text string) model.LyricGroup {
	runes := []rune(text)
	step := (end - start) / float64(len(runes))
	g := make(model.LyricGroup, len(runes))
	for i, r := range runes {
		g[i] = model.LyricNode{
			Text:  string(r),
			Start: start + float64(i)*step,
			End:   start + float64(i+1)*step,
		}
	}
	return g
}

// sampleSong has a long break between the fourth and fifth line.
func sampleSong() []model.LyricGroup {
	return []model.LyricGroup{
		line(5, 7, "abcd"),
		line(7.5, 9, "efgh"),
		line(9.5, 11, "ijkl"),
		line(12, 14, "mnop"),
		line(30, 32, "qrst"),
		line(32.5, 34, "uvwx"),
		line(35, 36, "yz"),
	}
}

type assignment struct {
	kind FrameKind
	line int
	at   float64
}

func assignments(frames []Frame) []assignment {
	var out []assignment
	for _, f := range frames {
		if f.Kind == LyricTop || f.Kind == LyricBottom {
			out = append(out, assignment{f.Kind, f.Line, f.Time})
		}
	}
	return out
}

func countKind(frames []Frame, kind FrameKind) int {
	n := 0
	for _, f := range frames {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func TestCompileEmpty(t *testing.T) {
	if frames := Compile(nil, Metadata{}); len(frames) != 0 {
		t.Errorf("Expected no frames for nil input, got %d", len(frames))
	}
	if frames := Compile([]model.LyricGroup{}, Metadata{}); len(frames) != 0 {
		t.Errorf("Expected no frames for empty input, got %d", len(frames))
	}

	s := NewScheduler(nil, Metadata{})
	if s.Active() {
		t.Error("Scheduler without lyrics should be inactive")
	}
	if n := s.Update(100); n != 0 {
		t.Errorf("Expected nothing to fire, got %d", n)
	}
	r := s.Render(100)
	if r.Top.Visible || r.Bottom.Visible || r.Top.Index != NoLine {
		t.Errorf("Expected empty slots, got %+v", r)
	}
}

func TestCompileSorted(t *testing.T) {
	frames := Compile(sampleSong(), Metadata{Title: "Song"})
	if len(frames) == 0 {
		t.Fatal("Expected frames")
	}
	if !sort.SliceIsSorted(frames, func(a, b int) bool { return frames[a].Time < frames[b].Time }) {
		t.Error("Frames are not sorted by time")
	}
}

func TestCompileTitle(t *testing.T) {
	frames := Compile(sampleSong(), Metadata{Title: "Song"})

	if frames[0].Kind != TitleShow || frames[0].Time != 0 {
		t.Fatalf("Expected TitleShow at 0 first, got %v at %f", frames[0].Kind, frames[0].Time)
	}
	if frames[0].Meta == nil || frames[0].Meta.Title != "Song" {
		t.Error("TitleShow should carry the metadata")
	}

	var hide *Frame
	for i := range frames {
		if frames[i].Kind == TitleHide {
			hide = &frames[i]
		}
	}
	if hide == nil || hide.Time != 2 {
		t.Errorf("Expected TitleHide at 2, got %+v", hide)
	}

	early := Compile([]model.LyricGroup{line(2, 3, "ab")}, Metadata{})
	if countKind(early, TitleShow) != 0 || countKind(early, TitleHide) != 0 {
		t.Error("No title card expected when the first line starts before 3s")
	}
}

func TestCompileCountdown(t *testing.T) {
	// first line plus the one after the long break
	frames := Compile(sampleSong(), Metadata{})
	if n := countKind(frames, Countdown); n != 26 {
		t.Errorf("Expected 26 countdown frames with tenths, got %d", n)
	}

	whole := Compile(sampleSong(), Metadata{}, WithCountdownCadence(CountdownWhole))
	if n := countKind(whole, Countdown); n != 8 {
		t.Errorf("Expected 8 whole-second countdown frames, got %d", n)
	}

	var last Frame
	for _, f := range whole {
		if f.Kind == Countdown && f.Time <= 5 {
			last = f
		}
	}
	if last.Time != 5 || last.Value != 0 {
		t.Errorf("Countdown should reach zero at the line start, got %+v", last)
	}
}

func TestCompileLineAssignment(t *testing.T) {
	got := assignments(Compile(sampleSong(), Metadata{}))
	want := []assignment{
		{LyricTop, 0, 2},
		{LyricBottom, 1, 2},
		{LyricTop, 2, 8.25},
		{LyricBottom, 3, 10.25},
		{LyricTop, 4, 27},
		{LyricBottom, 5, 27},
		{LyricTop, 6, 33.25},
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d assignments, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].kind != want[i].kind || got[i].line != want[i].line || math.Abs(got[i].at-want[i].at) > 1e-9 {
			t.Errorf("Assignment %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestCompileCooldown(t *testing.T) {
	frames := Compile(sampleSong(), Metadata{})

	var start, end []float64
	for _, f := range frames {
		switch f.Kind {
		case CooldownStart:
			start = append(start, f.Time)
		case CooldownEnd:
			end = append(end, f.Time)
		}
	}
	if len(start) != 1 || start[0] != 17 {
		t.Errorf("Expected one CooldownStart at 17, got %v", start)
	}
	if len(end) != 1 || end[0] != 27 {
		t.Errorf("Expected one CooldownEnd at 27, got %v", end)
	}
}

func TestCompileTransitionFraction(t *testing.T) {
	groups := []model.LyricGroup{line(3, 4, "a"), line(4, 6, "b"), line(7, 10, "c")}

	got := assignments(Compile(groups, Metadata{}, WithTransitionFraction(0.25)))
	if len(got) != 3 {
		t.Fatalf("Expected 3 assignments, got %d", len(got))
	}
	if got[2].at != 4.5 {
		t.Errorf("Expected transition at 4.5, got %f", got[2].at)
	}
}

func TestCompileSkipsEmptyGroups(t *testing.T) {
	groups := []model.LyricGroup{line(4, 5, "ab"), {}, line(6, 7, "cd"), line(7.5, 8, "ef")}

	frames := Compile(groups, Metadata{})
	for _, a := range assignments(frames) {
		if a.line == 1 {
			t.Errorf("Empty line should never be assigned: %+v", a)
		}
	}
	// the line after an empty one gets neither a transition nor a countdown
	if n := countKind(frames, Countdown); n != 13 {
		t.Errorf("Expected only the first countdown, got %d frames", n)
	}
}

func TestSchedulerFiresOnce(t *testing.T) {
	s := NewScheduler(sampleSong(), Metadata{Title: "Song"})
	total := len(s.Frames())

	fired := 0
	for tick := 0; tick <= 40*60; tick++ {
		fired += s.Update(float64(tick) / 60)
	}
	if fired != total {
		t.Errorf("Expected %d frames fired, got %d", total, fired)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected no pending frames, got %d", s.Pending())
	}
	for i, f := range s.Frames() {
		if !f.Fired() {
			t.Errorf("Frame %d (%v) never fired", i, f.Kind)
		}
	}

	if n := s.Update(50); n != 0 {
		t.Errorf("Frames fired twice: %d", n)
	}
	// going back in time does not un-fire anything
	if n := s.Update(0); n != 0 {
		t.Errorf("Rewind fired %d frames", n)
	}
}

func TestSchedulerState(t *testing.T) {
	s := NewScheduler(sampleSong(), Metadata{Title: "Song"})

	s.Update(1)
	st := s.State()
	if !st.TitleVisible || st.Top != NoLine || st.Bottom != NoLine {
		t.Errorf("At 1s expected title only, got %+v", st)
	}

	s.Update(2)
	st = s.State()
	if st.TitleVisible || st.Top != 0 || st.Bottom != 1 {
		t.Errorf("At 2s expected lines 0/1, got %+v", st)
	}
	r := s.Render(2)
	if r.CountdownText != "3" || !r.CountdownVisible {
		t.Errorf("Expected countdown 3, got %q visible=%v", r.CountdownText, r.CountdownVisible)
	}

	s.Update(4.55)
	if r := s.Render(4.55); r.CountdownText != "0.5" {
		t.Errorf("Expected countdown 0.5, got %q", r.CountdownText)
	}

	s.Update(6)
	r = s.Render(6)
	if r.CountdownVisible {
		t.Error("Countdown should be hidden once the line starts")
	}
	if r.Top.Text != "abcd" || r.Bottom.Text != "efgh" {
		t.Errorf("Unexpected lines %q / %q", r.Top.Text, r.Bottom.Text)
	}
	if math.Abs(r.Top.Progress-0.5) > 1e-9 {
		t.Errorf("Expected top progress 0.5, got %f", r.Top.Progress)
	}
	if r.Bottom.Progress != 0 {
		t.Errorf("Expected bottom progress 0, got %f", r.Bottom.Progress)
	}

	s.Update(8.25)
	if st := s.State(); st.Top != 2 || st.Bottom != 1 {
		t.Errorf("Expected top replaced by line 2, got %+v", st)
	}

	s.Update(17.5)
	st = s.State()
	if !st.CooldownVisible || st.Top != NoLine || st.Bottom != NoLine {
		t.Errorf("Expected cooldown with cleared slots, got %+v", st)
	}
	if r := s.Render(17.5); r.Top.Visible || r.Bottom.Visible {
		t.Error("Slots should be hidden during cooldown")
	}

	s.Update(27)
	st = s.State()
	if st.CooldownVisible || st.Top != 4 || st.Bottom != 5 {
		t.Errorf("Expected lines 4/5 after cooldown, got %+v", st)
	}

	s.Update(33.25)
	if st := s.State(); st.Top != 6 || st.Bottom != 5 {
		t.Errorf("Expected line 6 on top after cooldown, got %+v", st)
	}
}

func TestProgress(t *testing.T) {
	g := model.LyricGroup{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1, End: 2},
		{Text: "c", Start: 3, End: 4},
	}

	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"before", -1, 0},
		{"at start", 0, 0},
		{"inside first", 0.5, 1.0 / 6},
		{"between glyphs", 2.5, 2.0 / 3},
		{"inside last", 3.5, 2.5 / 3},
		{"at end", 4, 1},
		{"after", 9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(g, tt.t); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Progress(%f) = %f, want %f", tt.t, got, tt.want)
			}
		})
	}

	if Progress(nil, 1) != 0 {
		t.Error("Empty group should report 0")
	}
	zero := model.LyricGroup{{Text: "x", Start: 1, End: 1}, {Text: "y", Start: 1, End: 2}}
	if got := Progress(zero, 1.5); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Zero-length glyph: expected 0.75, got %f", got)
	}
}

func TestCountdownText(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{3, "3"},
		{1, "1"},
		{0.9, "0.9"},
		{0.1, "0.1"},
		{0, ""},
	}
	for _, tt := range tests {
		if got := CountdownText(tt.v); got != tt.want {
			t.Errorf("CountdownText(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestLoadLyricTrack(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "lyric.json")
	content := `[[{"t":"a","s":1,"e":1.5},{"t":"b","s":1.5,"e":2}],[{"t":"c","s":3,"e":2.5}]]`
	if err := os.WriteFile(good, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	groups, err := LoadLyricTrack(good)
	if err != nil {
		t.Fatalf("LoadLyricTrack failed: %v", err)
	}
	if len(groups) != 2 || groups[0].Text() != "ab" {
		t.Fatalf("Unexpected groups: %+v", groups)
	}
	if groups[1][0].End != 3 {
		t.Errorf("Expected inverted glyph clamped to its start, got %f", groups[1][0].End)
	}

	if groups, err := LoadLyricTrack(""); err != nil || groups != nil {
		t.Errorf("Empty path should yield no data, got %v, %v", groups, err)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte("  \n"), 0o644)
	if groups, err := LoadLyricTrack(empty); err != nil || len(groups) != 0 {
		t.Errorf("Empty file should yield no data, got %v, %v", groups, err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`[[{"t":`), 0o644)
	if _, err := LoadLyricTrack(bad); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	if _, err := LoadLyricTrack(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestMetadataFromSong(t *testing.T) {
	m := MetadataFromSong(&model.Song{Title: "Title", Artist: ""})
	if m.Title != "Title" || m.Artist != "Unknown artist" || m.Lyricist != "Unknown lyricist" {
		t.Errorf("Unexpected metadata %+v", m)
	}
	if MetadataFromSong(nil).Title != "Unknown title" {
		t.Error("Nil song should use placeholders")
	}
}
