package pitch

import "testing"

func TestNoteFromPitch(t *testing.T) {
	tests := []struct {
		freq float64
		note int
	}{
		{440, 69},
		{261.63, 60},
		{880, 81},
		{82.41, 40},
		{450, 69},
		{460, 70},
	}

	for _, tt := range tests {
		if got := NoteFromPitch(tt.freq); got != tt.note {
			t.Errorf("NoteFromPitch(%.2f) = %d, want %d", tt.freq, got, tt.note)
		}
	}
}

func TestCentsOffFromPitch(t *testing.T) {
	if c := CentsOffFromPitch(440, 69); c != 0 {
		t.Errorf("CentsOffFromPitch(440, 69) = %d, want 0", c)
	}
	// one semitone up from A4 measured against A4
	if c := CentsOffFromPitch(FrequencyFromNote(70), 69); c != 100 {
		t.Errorf("Expected 100 cents, got %d", c)
	}
	if c := CentsOffFromPitch(435, 69); c >= 0 {
		t.Errorf("Flat pitch should give negative cents, got %d", c)
	}
}

func TestNoteNames(t *testing.T) {
	tests := []struct {
		note  int
		name  string
		label string
	}{
		{60, "C", "C4"},
		{69, "A", "A4"},
		{61, "C#", "C#4"},
		{0, "C", "C-1"},
		{-1, "B", "B-2"},
	}

	for _, tt := range tests {
		if got := NoteName(tt.note); got != tt.name {
			t.Errorf("NoteName(%d) = %q, want %q", tt.note, got, tt.name)
		}
		if got := NoteLabel(tt.note); got != tt.label {
			t.Errorf("NoteLabel(%d) = %q, want %q", tt.note, got, tt.label)
		}
	}
}

func TestPitchClass(t *testing.T) {
	if PitchClass(72) != PitchClass(60) {
		t.Error("Octaves should share a pitch class")
	}
	if PitchClass(-13) != 11 {
		t.Errorf("PitchClass(-13) = %d, want 11", PitchClass(-13))
	}
}
