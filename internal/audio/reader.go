package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavInfo is the format of a decoded WAV file.
type WavInfo struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	Duration    time.Duration
}

func openWav(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, nil, errors.New("not a WAV/RIFF file")
	}
	return f, d, nil
}

// ProbeWav reads only the headers of a WAV file. The duration is taken from
// the data chunk size so header bytes are not counted as audio.
func ProbeWav(path string) (*WavInfo, error) {
	f, d, err := openWav(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating PCM data: %w", err)
	}
	frameSize := int64(d.NumChans) * int64(d.BitDepth) / 8
	if d.SampleRate == 0 || frameSize == 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channels, %d bits", d.SampleRate, d.NumChans, d.BitDepth)
	}
	frames := d.PCMLen() / frameSize
	duration := time.Duration(frames) * time.Second / time.Duration(d.SampleRate)

	return &WavInfo{
		SampleRate:  int(d.SampleRate),
		NumChannels: int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		Duration:    duration,
	}, nil
}

// convertToMonoFloat64 averages interleaved channels and normalizes integer
// PCM of the given bit depth to [-1, 1].
func convertToMonoFloat64(data []int, numChannels, bitDepth int) ([]float64, error) {
	if numChannels < 1 {
		return nil, fmt.Errorf("unsupported channel count: %d", numChannels)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bits per sample: %d", bitDepth)
	}

	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(data) / numChannels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < numChannels; ch++ {
			sum += float64(data[i*numChannels+ch])
		}
		out[i] = sum / float64(numChannels) * scale
	}
	return out, nil
}

// ReadWavAsFloat64 reads an integer PCM WAV file and returns mono samples in
// [-1, 1] together with the sample rate.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, d, err := openWav(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding PCM samples: %w", err)
	}
	if d.WavAudioFormat != 1 {
		return nil, 0, errors.New("unsupported WAV audio format: only PCM (1) supported")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}

	samples, err := convertToMonoFloat64(buf.Data, buf.Format.NumChannels, bitDepth)
	if err != nil {
		return nil, 0, err
	}
	return samples, buf.Format.SampleRate, nil
}

// WriteWavFloat64 writes mono samples as 16-bit PCM.
func WriteWavFloat64(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding PCM samples: %w", err)
	}
	return enc.Close()
}
