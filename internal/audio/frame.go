// Package audio implements the capture and playback halves of the voice
// pipeline: loudness metering, wire-rate resampling, PCM16 framing, the
// gapless playback scheduler, and the synthetic voice-effect graph.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrUpsampleUnsupported is returned when a caller asks the decimator to
// raise the sample rate. The capture path only ever narrows to the wire rate.
var ErrUpsampleUnsupported = errors.New("audio: upsampling is not supported")

// RMS computes root-mean-square loudness over one frame of float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DecimateBoxcar downsamples by averaging, for each output sample, every
// input sample whose index range maps to it under inRate/outRate. The output
// length is round(len(in) * outRate / inRate).
func DecimateBoxcar(in []float32, inRate, outRate int) ([]float32, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("audio: invalid rates %d -> %d", inRate, outRate)
	}
	if outRate > inRate {
		return nil, ErrUpsampleUnsupported
	}
	if outRate == inRate || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}

	outLen := int(math.Round(float64(len(in)) * float64(outRate) / float64(inRate)))
	ratio := float64(inRate) / float64(outRate)
	out := make([]float32, outLen)
	for i := range out {
		lo := int(float64(i) * ratio)
		hi := int(float64(i+1) * ratio)
		if hi > len(in) {
			hi = len(in)
		}
		if hi <= lo {
			hi = lo + 1
		}
		var sum float64
		for j := lo; j < hi; j++ {
			sum += float64(in[j])
		}
		out[i] = float32(sum / float64(hi-lo))
	}
	return out, nil
}

// EncodePCM16 converts float samples in [-1, 1] to 16-bit signed little-endian
// PCM with round-to-nearest. Samples are clamped first; negative values scale
// by 32768 and positive by 32767 so +1.0 cannot overflow.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to float samples by
// dividing by 32768. Odd-length input is a decode error; the caller drops
// the chunk.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd PCM byte count %d", len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out, nil
}
