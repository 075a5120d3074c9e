package memcore

import (
	"fmt"
	"sort"
	"strings"
)

// NoData is the sentinel injected when a search produced nothing.
const NoData = "no matching records in the archive"

// FormatForInjection renders records for prompt injection: one line per
// record, newest first, capped at maxSearchResults.
func FormatForInjection(records []Record) string {
	if len(records) == 0 {
		return NoData
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > maxSearchResults {
		sorted = sorted[:maxSearchResults]
	}

	lines := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		lines = append(lines, fmt.Sprintf("[ARCHIVE:%s | %s] %s", rec.ID, rec.Category, rec.Content))
	}
	return strings.Join(lines, "\n")
}
