package memcore

import (
	"sort"
	"strings"
)

// maxSearchResults caps what a single search hands back for prompt injection.
const maxSearchResults = 5

// filterRecords applies the client-side search: a case-insensitive substring
// match against content, category, or any tag, unioned with records sharing
// at least one of the requested tags. Matches sort newest first and cap at
// maxSearchResults.
func filterRecords(records []Record, query string, tags []string) []Record {
	needle := strings.ToLower(strings.TrimSpace(query))
	wanted := make(map[string]bool, len(tags))
	for _, tag := range tags {
		wanted[strings.ToLower(tag)] = true
	}

	var matches []Record
	for _, rec := range records {
		if matchesText(rec, needle) || matchesTags(rec, wanted) {
			matches = append(matches, rec)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	return matches
}

func matchesText(rec Record, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.Contains(strings.ToLower(rec.Content), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Category), needle) {
		return true
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func matchesTags(rec Record, wanted map[string]bool) bool {
	if len(wanted) == 0 {
		return false
	}
	for _, tag := range rec.Tags {
		if wanted[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}
