package audio

import "math"

// The playback effect graph approximating the synthetic voice timbre:
// high-pass -> parallel dry/wet split (wet = short feedback delay) ->
// dynamics compressor -> sink. Each stage keeps state across buffers so
// back-to-back chunks are processed as one continuous stream.

const (
	highpassCutoffHz = 320.0
	delayTimeSeconds = 0.012
	delayFeedback    = 0.75
	wetMix           = 0.5

	compThreshold = 0.5
	compRatio     = 4.0
	compMakeup    = 1.2
)

type highpass struct {
	alpha    float32
	prevIn   float32
	prevOut  float32
	prepared bool
}

func newHighpass(sampleRate int) *highpass {
	rc := 1.0 / (2 * math.Pi * highpassCutoffHz)
	dt := 1.0 / float64(sampleRate)
	return &highpass{alpha: float32(rc / (rc + dt))}
}

func (h *highpass) process(s float32) float32 {
	if !h.prepared {
		h.prepared = true
		h.prevIn = s
		h.prevOut = 0
		return 0
	}
	out := h.alpha * (h.prevOut + s - h.prevIn)
	h.prevIn = s
	h.prevOut = out
	return out
}

type feedbackDelay struct {
	line []float32
	pos  int
	fb   float32
}

func newFeedbackDelay(sampleRate int) *feedbackDelay {
	n := int(delayTimeSeconds * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return &feedbackDelay{line: make([]float32, n), fb: delayFeedback}
}

func (d *feedbackDelay) process(s float32) float32 {
	delayed := d.line[d.pos]
	d.line[d.pos] = s + delayed*d.fb
	d.pos++
	if d.pos == len(d.line) {
		d.pos = 0
	}
	return delayed
}

type compressor struct {
	threshold float32
	ratio     float32
	makeup    float32
}

func newCompressor() *compressor {
	return &compressor{threshold: compThreshold, ratio: compRatio, makeup: compMakeup}
}

func (c *compressor) process(s float32) float32 {
	mag := s
	if mag < 0 {
		mag = -mag
	}
	if mag > c.threshold {
		over := mag - c.threshold
		mag = c.threshold + over/c.ratio
	}
	out := mag * c.makeup
	if out > 1 {
		out = 1
	}
	if s < 0 {
		out = -out
	}
	return out
}

// EffectChain is the fixed playback effect graph.
type EffectChain struct {
	hp    *highpass
	delay *feedbackDelay
	comp  *compressor
}

// NewEffectChain builds the graph for the given playback sample rate.
func NewEffectChain(sampleRate int) *EffectChain {
	return &EffectChain{
		hp:    newHighpass(sampleRate),
		delay: newFeedbackDelay(sampleRate),
		comp:  newCompressor(),
	}
}

// Process runs samples through the graph in place and returns the slice.
func (c *EffectChain) Process(samples []float32) []float32 {
	for i, s := range samples {
		filtered := c.hp.process(s)
		wet := c.delay.process(filtered)
		mixed := filtered*(1-wetMix) + wet*wetMix
		samples[i] = c.comp.process(mixed)
	}
	return samples
}
