package audio

import (
	"math"
	"sync/atomic"
)

// LevelMeter publishes the most recent frame loudness as a lock-free scalar.
// Readers poll it for visualization; writers never block on it.
type LevelMeter struct {
	bits atomic.Uint64
}

// Set stores the current RMS level.
func (m *LevelMeter) Set(level float64) {
	m.bits.Store(math.Float64bits(level))
}

// Level returns the most recently published RMS level.
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

// CaptureProcessor turns raw microphone frames into wire-format frames. It
// runs inside the audio-device callback, so every step is synchronous and
// bounded and the handoff to the session never blocks: when the outbound
// channel is full the frame is dropped and counted.
type CaptureProcessor struct {
	srcRate  int
	wireRate int
	meter    *LevelMeter
	out      chan []byte
	dropped  atomic.Int64
}

// NewCaptureProcessor creates a processor decimating srcRate to wireRate.
// The outbound channel is buffered; the capacity bounds how much audio can
// sit unsent before frames drop.
func NewCaptureProcessor(srcRate, wireRate int, meter *LevelMeter) *CaptureProcessor {
	return &CaptureProcessor{
		srcRate:  srcRate,
		wireRate: wireRate,
		meter:    meter,
		out:      make(chan []byte, 32),
	}
}

// Frames is the stream of encoded wire frames for the orchestrator.
func (p *CaptureProcessor) Frames() <-chan []byte {
	return p.out
}

// Dropped reports how many frames were discarded because the session was not
// keeping up.
func (p *CaptureProcessor) Dropped() int64 {
	return p.dropped.Load()
}

// ProcessFrame handles one fixed-size capture frame.
func (p *CaptureProcessor) ProcessFrame(samples []float32) error {
	if p.meter != nil {
		p.meter.Set(RMS(samples))
	}

	wire := samples
	if p.srcRate != p.wireRate {
		decimated, err := DecimateBoxcar(samples, p.srcRate, p.wireRate)
		if err != nil {
			return err
		}
		wire = decimated
	}

	frame := EncodePCM16(wire)
	select {
	case p.out <- frame:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// Close closes the outbound frame stream. Call after the capture device has
// stopped invoking ProcessFrame.
func (p *CaptureProcessor) Close() {
	close(p.out)
}
