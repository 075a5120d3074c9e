package observability

import (
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(4)
	for _, ms := range []int{100, 200, 300} {
		w.Observe(StageFirstAudio, time.Duration(ms)*time.Millisecond)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stage count = %d, want 1", len(snap.Stages))
	}
	st := snap.Stages[0]
	if st.Stage != StageFirstAudio || st.Samples != 3 {
		t.Fatalf("stage = %+v", st)
	}
	if st.LastMS != 300 || st.AvgMS != 200 || st.P50MS != 200 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestLatencyWindowWraps(t *testing.T) {
	w := NewLatencyWindow(2)
	for _, ms := range []int{10, 20, 30} {
		w.Observe(StageClassifier, time.Duration(ms)*time.Millisecond)
	}
	snap := w.Snapshot()
	if snap.Stages[0].Samples != 2 {
		t.Fatalf("samples = %d, want window size 2", snap.Stages[0].Samples)
	}
}

func TestLatencyWindowIndicatorsAndReset(t *testing.T) {
	w := NewLatencyWindow(4)
	w.ObserveIndicator("augment_dropped")
	w.ObserveIndicator("augment_dropped")
	w.ObserveIndicator("  ")

	snap := w.Snapshot()
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("indicators = %+v", snap.Indicators)
	}

	w.Reset()
	snap = w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
}
