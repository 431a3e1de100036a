package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/KaraokeCore/pkg/utils"
)

// convertTimeout bounds a conversion when the caller's context has no deadline.
const convertTimeout = 30 * time.Second

// NeedsConversion reports whether path cannot be replayed by FileDevice at
// sampleRate as it is.
func NeedsConversion(path string, sampleRate int) bool {
	info, err := ProbeWav(path)
	return err != nil || info.SampleRate != sampleRate
}

// ConvertToCaptureWAV transcodes any file ffmpeg can read into a mono 16-bit
// WAV at sampleRate, written to outputDir as <base>.wav.
func ConvertToCaptureWAV(ctx context.Context, inputPath, outputDir string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		return "", fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if !utils.FileExists(inputPath) {
		return "", fmt.Errorf("converting %s: %w", inputPath, os.ErrNotExist)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, convertTimeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", fmt.Errorf("moving converted file: %w", err)
	}
	return outputPath, nil
}
