package pitch

import (
	"errors"
	"math"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/mjibson/go-dsp/fft"
)

// Tunables
const (
	DefaultSampleRate = 44100
	DefaultBufferSize = 2048

	// MinSampleRate is the lowest capture rate at which sung notes up to
	// 1 kHz are tracked within 1%. Below it the period of high notes spans
	// too few samples and the lag peak slips to the octave below.
	MinSampleRate = 22050

	// SilenceRMS is the energy gate below which no pitch is reported.
	SilenceRMS = 0.01
	// TrimThreshold bounds the lead-in/lead-out trim of a buffer.
	TrimThreshold = 0.2
	// volumeGain maps mean absolute amplitude onto 0..100.
	volumeGain = 200.0
)

// ErrNoPitch is returned when a buffer is silent or carries no usable period.
var ErrNoPitch = errors.New("no pitch detected")

// Detector estimates the fundamental frequency of mono buffers by
// autocorrelation with parabolic peak refinement. It keeps no state between
// calls and is safe for concurrent use.
type Detector struct {
	sampleRate    int
	silenceRMS    float64
	trimThreshold float64
}

type DetectorOption func(*Detector)

// WithSilenceRMS overrides the RMS gate.
func WithSilenceRMS(rms float64) DetectorOption {
	return func(d *Detector) {
		d.silenceRMS = rms
	}
}

// WithTrimThreshold overrides the amplitude used to trim buffer edges.
func WithTrimThreshold(threshold float64) DetectorOption {
	return func(d *Detector) {
		d.trimThreshold = threshold
	}
}

func NewDetector(sampleRate int, opts ...DetectorOption) *Detector {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	d := &Detector{
		sampleRate:    sampleRate,
		silenceRMS:    SilenceRMS,
		trimThreshold: TrimThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) SampleRate() int {
	return d.sampleRate
}

// SupportedSampleRate reports whether rate gives reliable estimates.
func SupportedSampleRate(rate int) bool {
	return rate >= MinSampleRate
}

// Detect returns the frequency in Hz of buf, or ErrNoPitch.
func (d *Detector) Detect(buf []float64) (float64, error) {
	if len(buf) == 0 || RMS(buf) < d.silenceRMS {
		return 0, ErrNoPitch
	}

	trimmed := trim(buf, d.trimThreshold)
	if len(trimmed) < 3 {
		return 0, ErrNoPitch
	}

	c := autocorrelate(trimmed)

	// skip the descending zero-lag lobe
	dip := 0
	for dip < len(c)-1 && c[dip] > c[dip+1] {
		dip++
	}

	maxpos := dip
	for i := dip + 1; i < len(c); i++ {
		if c[i] > c[maxpos] {
			maxpos = i
		}
	}
	if maxpos < 1 || maxpos >= len(c)-1 {
		return 0, ErrNoPitch
	}

	t0 := float64(maxpos)
	x1, x2, x3 := c[maxpos-1], c[maxpos], c[maxpos+1]
	a := (x1 + x3 - 2*x2) / 2
	b := (x3 - x1) / 2
	if a != 0 {
		t0 -= b / (2 * a)
	}
	if t0 <= 0 || math.IsNaN(t0) || math.IsInf(t0, 0) {
		return 0, ErrNoPitch
	}

	return float64(d.sampleRate) / t0, nil
}

// Analyze produces the full sample for a buffer. The buffer is not retained.
func (d *Detector) Analyze(buf []float64) *model.PitchSample {
	sample := &model.PitchSample{Volume: Volume(buf)}

	freq, err := d.Detect(buf)
	if err != nil {
		return sample
	}

	note := NoteFromPitch(freq)
	sample.Frequency = freq
	sample.Note = note
	sample.Name = NoteName(note)
	sample.Cents = CentsOffFromPitch(freq, note)
	return sample
}

// RMS returns the root-mean-square amplitude of buf.
func RMS(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}

// Volume returns the mean absolute amplitude scaled to a 0..100 percentage.
func Volume(buf []float64) int {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += math.Abs(v)
	}
	return int(math.Min(100, sum/float64(len(buf))*volumeGain))
}

// trim drops the edges of buf up to the first quiet sample searched from each
// end within the outer halves.
func trim(buf []float64, threshold float64) []float64 {
	n := len(buf)
	r1, r2 := 0, n-1
	for i := 0; i < n/2; i++ {
		if math.Abs(buf[i]) < threshold {
			r1 = i
			break
		}
	}
	for i := 1; i < n/2; i++ {
		if math.Abs(buf[n-i]) < threshold {
			r2 = n - i
			break
		}
	}
	if r2 <= r1 {
		return nil
	}
	return buf[r1:r2]
}

// autocorrelate returns c[i] = sum_j x[j]*x[j+i] for i in [0, len(x)).
// The lag sums are taken through a zero-padded FFT so no circular wrap occurs.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	size := 1
	for size < 2*n {
		size <<= 1
	}

	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, v := range spectrum {
		spectrum[i] = complex(real(v)*real(v)+imag(v)*imag(v), 0)
	}
	lags := fft.IFFT(spectrum)

	c := make([]float64, n)
	for i := range c {
		c[i] = real(lags[i])
	}
	return c
}
