package pitch

import (
	"fmt"
	"math"
)

// ReferenceA4 is the tuning reference in Hz; note 69 is A4.
const ReferenceA4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteFromPitch returns the nearest MIDI note number for a frequency.
func NoteFromPitch(frequency float64) int {
	return int(math.Round(69 + 12*math.Log2(frequency/ReferenceA4)))
}

// FrequencyFromNote returns the equal-tempered frequency of a note number.
func FrequencyFromNote(note int) float64 {
	return ReferenceA4 * math.Pow(2, float64(note-69)/12)
}

// CentsOffFromPitch returns how far frequency deviates from note, in cents.
func CentsOffFromPitch(frequency float64, note int) int {
	return int(math.Round(1200 * math.Log2(frequency/FrequencyFromNote(note))))
}

// PitchClass folds a note number into 0..11 (C = 0).
func PitchClass(note int) int {
	return ((note % 12) + 12) % 12
}

// NoteName returns the chromatic name of a note without its octave.
func NoteName(note int) string {
	return noteNames[PitchClass(note)]
}

// NoteLabel returns the name with scientific octave, e.g. "A4".
func NoteLabel(note int) string {
	octave := int(math.Floor(float64(note)/12)) - 1
	return fmt.Sprintf("%s%d", NoteName(note), octave)
}
