package config

import "reflect"

// Diff describes what changed between two configs, restricted to the
// sections spec.md §6 calls out as hot-reloadable without a process
// restart: scoring, staleness, and detection weights, plus the context
// cache settings.
type Diff struct {
	ScoringChanged   bool
	StalenessChanged bool
	DetectionChanged bool
	CacheChanged     bool
}

// Changed reports whether any tracked section differs.
func (d Diff) Changed() bool {
	return d.ScoringChanged || d.StalenessChanged || d.DetectionChanged || d.CacheChanged
}

// DiffConfigs compares old and new and reports which hot-reloadable
// sections changed. Storage, vector, and embedding sections are not
// compared here — swapping a backend or provider requires a restart, so
// a [Watcher] consumer should ignore this diff for those sections.
func DiffConfigs(old, new *Config) Diff {
	return Diff{
		ScoringChanged:   !reflect.DeepEqual(old.Scoring, new.Scoring),
		StalenessChanged: !reflect.DeepEqual(old.Staleness, new.Staleness),
		DetectionChanged: !reflect.DeepEqual(old.Detection, new.Detection),
		CacheChanged:     old.ContextCache != new.ContextCache,
	}
}
