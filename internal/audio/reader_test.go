package audio

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTone writes a sine of the given frequency to a temporary WAV file.
func writeTone(t *testing.T, freq float64, sampleRate, n int) string {
	t.Helper()

	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWavFloat64(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWavFloat64 failed: %v", err)
	}
	return path
}

func TestConvertToMonoFloat64(t *testing.T) {
	tests := []struct {
		name        string
		data        []int
		numChannels int
		bitDepth    int
		expected    []float64
		expectError bool
	}{
		{
			name:        "Mono 16-bit",
			data:        []int{0, 16384, -16384},
			numChannels: 1,
			bitDepth:    16,
			expected:    []float64{0, 0.5, -0.5},
		},
		{
			name:        "Stereo averages channels",
			data:        []int{16384, 0, -16384, -16384},
			numChannels: 2,
			bitDepth:    16,
			expected:    []float64{0.25, -0.5},
		},
		{
			name:        "8-bit scale",
			data:        []int{64},
			numChannels: 1,
			bitDepth:    8,
			expected:    []float64{0.5},
		},
		{
			name:        "No channels",
			data:        []int{0, 0},
			numChannels: 0,
			bitDepth:    16,
			expectError: true,
		},
		{
			name:        "Unsupported depth",
			data:        []int{0},
			numChannels: 1,
			bitDepth:    4,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := convertToMonoFloat64(tt.data, tt.numChannels, tt.bitDepth)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %d samples, got %d", len(tt.expected), len(result))
			}
			for i := range result {
				if math.Abs(result[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("Sample %d: expected %f, got %f", i, tt.expected[i], result[i])
				}
			}
		})
	}
}

func TestReadWavAsFloat64(t *testing.T) {
	path := writeTone(t, 440, 22050, 22050)

	samples, sampleRate, err := ReadWavAsFloat64(path)
	if err != nil {
		t.Fatalf("ReadWavAsFloat64 failed: %v", err)
	}
	if sampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", sampleRate)
	}
	if len(samples) != 22050 {
		t.Errorf("Expected 22050 samples, got %d", len(samples))
	}

	for i, s := range samples {
		if s < -1.0 || s > 1.0 {
			t.Fatalf("Sample %d out of range [-1, 1]: %f", i, s)
		}
	}

	// quarter period of 440 Hz at 22050 Hz is ~12.5 samples
	if math.Abs(samples[12]-0.5*math.Sin(2*math.Pi*440*12/22050)) > 1e-3 {
		t.Errorf("Sample 12 does not match the written tone: %f", samples[12])
	}
}

func TestProbeWav(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		samples    int
		expected   time.Duration
	}{
		{"Two seconds at 11025 Hz", 11025, 11025 * 2, 2 * time.Second},
		{"Ten seconds at 8000 Hz", 8000, 8000 * 10, 10 * time.Second},
		{"Ten seconds at 44100 Hz", 44100, 44100 * 10, 10 * time.Second},
		{"Half a second at 48000 Hz", 48000, 24000, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTone(t, 220, tt.sampleRate, tt.samples)

			info, err := ProbeWav(path)
			if err != nil {
				t.Fatalf("ProbeWav failed: %v", err)
			}
			if info.SampleRate != tt.sampleRate || info.NumChannels != 1 || info.BitDepth != 16 {
				t.Errorf("Unexpected format: %+v", info)
			}
			// one sample period of slack; the 36-byte header alone is worth 18 samples
			slack := time.Second / time.Duration(tt.sampleRate)
			if diff := info.Duration - tt.expected; diff < -slack || diff > slack {
				t.Errorf("Expected duration %v, got %v", tt.expected, info.Duration)
			}
		})
	}
}

func TestReadWavInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, _, err := ReadWavAsFloat64(path); err == nil {
		t.Error("ReadWavAsFloat64 should fail on invalid file")
	}
}

func TestReadWavAsFloat64NonExistent(t *testing.T) {
	if _, _, err := ReadWavAsFloat64("nonexistent-file.wav"); err == nil {
		t.Error("Expected error when reading non-existent file")
	}
}

func TestFileDeviceReadsBuffers(t *testing.T) {
	path := writeTone(t, 440, 8000, 1000)

	dev := &FileDevice{Path: path}
	stream, err := dev.Open(8000, 256)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	buf := make([]float64, 256)
	total := 0
	for {
		n, err := stream.Read(buf)
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}
	if total != 1000 {
		t.Errorf("Expected 1000 samples, got %d", total)
	}
}

func TestFileDeviceStop(t *testing.T) {
	path := writeTone(t, 440, 8000, 8000)

	stream, err := (&FileDevice{Path: path, Realtime: true}).Open(8000, 128)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := stream.Read(make([]float64, 128)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed after Stop, got %v", err)
	}

	// idempotent
	stream.Stop()
	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestFileDeviceRejectsRateMismatch(t *testing.T) {
	path := writeTone(t, 440, 8000, 800)

	_, err := (&FileDevice{Path: path}).Open(44100, 2048)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}

	_, err = (&FileDevice{Path: "missing.wav"}).Open(44100, 2048)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable for missing file, got %v", err)
	}
}

func TestMicDeviceOpen(t *testing.T) {
	if os.Getenv("KARAOKE_MIC_TEST") == "" {
		t.Skip("Set KARAOKE_MIC_TEST=1 to exercise the system microphone")
	}

	stream, err := (&MicDevice{}).Open(44100, 2048)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			t.Skipf("No capture device: %v", err)
		}
		t.Fatalf("Open failed with unexpected error: %v", err)
	}
	defer stream.Close()

	buf := make([]float64, 2048)
	n, err := stream.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Expected a full buffer, got %d samples", n)
	}
}
