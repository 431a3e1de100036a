package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestNeedsConversion(t *testing.T) {
	tone := writeTone(t, 440, 22050, 2048)

	notWav := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(notWav, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		rate int
		want bool
	}{
		{"matching rate", tone, 22050, false},
		{"different rate", tone, 44100, true},
		{"not a wav", notWav, 44100, true},
		{"missing", filepath.Join(t.TempDir(), "nope.wav"), 44100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsConversion(tt.path, tt.rate); got != tt.want {
				t.Errorf("NeedsConversion = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvertToCaptureWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skipf("ffmpeg not installed: %v", err)
	}

	tone := writeTone(t, 440, 22050, 22050)
	out, err := ConvertToCaptureWAV(context.Background(), tone, t.TempDir(), 44100)
	if err != nil {
		t.Fatalf("ConvertToCaptureWAV failed: %v", err)
	}

	info, err := ProbeWav(out)
	if err != nil {
		t.Fatalf("ProbeWav failed: %v", err)
	}
	if info.SampleRate != 44100 || info.NumChannels != 1 || info.BitDepth != 16 {
		t.Errorf("Unexpected format %+v", info)
	}
	if filepath.Base(out) != "tone.wav" {
		t.Errorf("Unexpected output name %s", out)
	}
}

func TestConvertToCaptureWAVErrors(t *testing.T) {
	_, err := ConvertToCaptureWAV(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), t.TempDir(), 44100)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}

	tone := writeTone(t, 440, 22050, 256)
	if _, err := ConvertToCaptureWAV(context.Background(), tone, t.TempDir(), 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
