package audio

import (
	"math"
	"sync"
)

// Buffer describes one scheduled playback chunk.
type Buffer struct {
	ID       uint64
	Start    float64 // seconds on the playback clock
	Duration float64 // seconds
}

type scheduledBuffer struct {
	Buffer
	startSample int64
	samples     []float32
}

// Scheduler owns the playback schedule cursor and the active playback set.
// Chunks are scheduled back-to-back: each starts at max(cursor, now), then
// the cursor advances by the chunk duration. The playback clock is derived
// from samples rendered to the sink, so a stalled sink also stalls the clock
// instead of drifting.
//
// The schedule cursor only moves backwards on Interrupt, which also empties
// the active set.
type Scheduler struct {
	sampleRate int

	mu       sync.Mutex
	cursor   float64
	playhead int64 // samples rendered since start
	nextID   uint64
	active   []*scheduledBuffer
	effects  *EffectChain
	scratch  []float32
}

// NewScheduler creates a playback scheduler for the given output rate.
func NewScheduler(sampleRate int) *Scheduler {
	return &Scheduler{
		sampleRate: sampleRate,
		effects:    NewEffectChain(sampleRate),
	}
}

// Now returns the current playback clock position in seconds.
func (s *Scheduler) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Scheduler) nowLocked() float64 {
	return float64(s.playhead) / float64(s.sampleRate)
}

// Schedule decodes one wire PCM chunk, routes it through the effect graph and
// appends it to the schedule. A decode error leaves the schedule untouched.
func (s *Scheduler) Schedule(pcm []byte) (Buffer, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return Buffer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	samples = s.effects.Process(samples)

	start := s.cursor
	if now := s.nowLocked(); start < now {
		start = now
	}
	dur := float64(len(samples)) / float64(s.sampleRate)

	s.nextID++
	buf := &scheduledBuffer{
		Buffer: Buffer{
			ID:       s.nextID,
			Start:    start,
			Duration: dur,
		},
		startSample: int64(math.Round(start * float64(s.sampleRate))),
		samples:     samples,
	}
	s.active = append(s.active, buf)
	s.cursor = start + dur
	return buf.Buffer, nil
}

// Interrupt force-stops every buffer in the active set and resets the
// schedule cursor to zero. The next chunk snaps to the playback clock.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.cursor = 0
}

// ActiveCount reports the number of scheduled-but-unfinished buffers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the schedule cursor in seconds.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Render fills dst with the next block of output samples and advances the
// playback clock. Regions with no scheduled audio render as silence. Buffers
// are removed from the active set exactly once, when the playhead passes
// their end.
func (s *Scheduler) Render(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}

	pos := s.playhead
	end := pos + int64(len(dst))
	remaining := s.active[:0]
	for _, buf := range s.active {
		bufEnd := buf.startSample + int64(len(buf.samples))
		if bufEnd > pos {
			lo := buf.startSample
			if lo < pos {
				lo = pos
			}
			hi := bufEnd
			if hi > end {
				hi = end
			}
			for j := lo; j < hi; j++ {
				dst[j-pos] += buf.samples[j-buf.startSample]
			}
		}
		if bufEnd <= end {
			continue // finishes inside this block: drop from the active set
		}
		remaining = append(remaining, buf)
	}
	s.active = remaining
	s.playhead = end
}

// ReadPCM implements a pull-based PCM16 sink interface: it renders the next
// len(p)/2 samples and encodes them little-endian. Always fills p, so the
// playback clock keeps running through silence.
func (s *Scheduler) ReadPCM(p []byte) (int, error) {
	n := len(p) / 2
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	block := s.scratch[:n]
	s.Render(block)
	encoded := EncodePCM16(block)
	copy(p, encoded)
	return n * 2, nil
}
