// Package audio handles the sample buffers and WAV files produced during a
// conversion run.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// WriteWAV writes mono samples in [-1, 1] to path as 16-bit PCM.
// Out-of-range samples are clipped.
func WriteWAV(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing wav: %w", cerr)
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(floatToInt16(s))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return nil
}

// ReadWAV reads a PCM WAV file and returns its first channel as normalized
// float32 samples together with the sample rate.
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := dec.BitDepth
	if depth == 0 {
		depth = bitDepth
	}
	scale := float32(int(1) << (depth - 1))
	out := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		out = append(out, float32(buf.Data[i])/scale)
	}
	return out, int(dec.SampleRate), nil
}

// Concat joins buffers in argument order.
func Concat(buffers ...[]float32) []float32 {
	n := 0
	for _, b := range buffers {
		n += len(b)
	}
	out := make([]float32, 0, n)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}

// Seconds returns the playback duration of n samples at rate.
func Seconds(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}

// PCM16ToFloat32 converts 16-bit little-endian PCM to normalized samples.
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// Float32FromLE decodes little-endian IEEE-754 float32 samples.
func Float32FromLE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts samples between rates with linear interpolation.
func Resample(input []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(input) == 0 {
		return input
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(input)) / ratio)
	if n == 0 {
		return []float32{}
	}
	out := make([]float32, n)
	for i := 0; i < n-1; i++ {
		pos := float64(i) * ratio
		before := int(pos)
		after := before + 1
		if after >= len(input) {
			after = len(input) - 1
		}
		frac := float32(pos - float64(before))
		out[i] = (1-frac)*input[before] + frac*input[after]
	}
	out[n-1] = input[len(input)-1]
	return out
}

func floatToInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16 + 1
	}
	return int16(math.Round(float64(s) * math.MaxInt16))
}
