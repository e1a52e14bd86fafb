package memory

import "strings"

// MatchesFilter reports whether m satisfies every non-zero condition in f.
// Storage backends that cannot push a condition down to their query layer
// (e.g. a vector store with no tag/type predicate) can call this directly
// on a candidate fetched by id.
func MatchesFilter(m Memory, f MemoryFilter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if m.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 {
		have := make(map[string]bool, len(m.Tags))
		for _, t := range m.Tags {
			have[strings.ToLower(t)] = true
		}
		if f.TagsMatch == "all" {
			for _, t := range f.Tags {
				if !have[strings.ToLower(t)] {
					return false
				}
			}
		} else {
			any := false
			for _, t := range f.Tags {
				if have[strings.ToLower(t)] {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}
	if f.RelatedFile != "" {
		found := false
		for _, rf := range m.RelatedFiles {
			if rf == f.RelatedFile {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinImportance > 0 && m.Importance < f.MinImportance {
		return false
	}
	if f.NeedsReview != nil && m.NeedsReview != *f.NeedsReview {
		return false
	}
	return true
}
