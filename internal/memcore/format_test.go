package memcore

import (
	"strings"
	"testing"
)

func TestFormatForInjectionEmpty(t *testing.T) {
	if got := FormatForInjection(nil); got != NoData {
		t.Fatalf("empty format = %q, want sentinel", got)
	}
}

func TestFormatForInjection(t *testing.T) {
	records := []Record{
		recordAt("old", "likes tea", "preferences", nil, 1),
		recordAt("new", "likes coffee", "preferences", nil, 2),
	}

	got := FormatForInjection(records)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if lines[0] != "[ARCHIVE:new | preferences] likes coffee" {
		t.Fatalf("first line = %q, want newest record", lines[0])
	}
	if lines[1] != "[ARCHIVE:old | preferences] likes tea" {
		t.Fatalf("second line = %q", lines[1])
	}
}

func TestFormatForInjectionCaps(t *testing.T) {
	var records []Record
	for i := 0; i < 9; i++ {
		records = append(records, recordAt("r", "fact", "general", nil, i))
	}
	got := FormatForInjection(records)
	if n := len(strings.Split(got, "\n")); n != maxSearchResults {
		t.Fatalf("line count = %d, want %d", n, maxSearchResults)
	}
}
