// Package conflict validates anchored suggestions against the current body,
// finds overlapping ranges, and ranks competing suggestions for display.
package conflict

import (
	"sort"
	"strings"
	"time"

	"redline/internal/config"
	models "redline/internal/domain/models/suggestion"
)

// Detector is safe for concurrent use; it holds configuration only.
type Detector struct {
	cfg      config.ConflictConfig
	strategy Strategy
	now      func() time.Time
}

// NewDetector creates a detector using the configured strategy.
func NewDetector(cfg *config.Engine) (*Detector, error) {
	strategy, err := NewStrategy(cfg.Conflict)
	if err != nil {
		return nil, err
	}
	return &Detector{
		cfg:      cfg.Conflict,
		strategy: strategy,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the detector that reads time from now.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	cp := *d
	cp.now = now
	return &cp
}

// Strategy returns the active conflict strategy.
func (d *Detector) Strategy() config.ConflictStrategy {
	return d.strategy.Name()
}

// Process annotates suggestions for display against body.
//
// Valid suggestions come first, ordered by display priority (highest first);
// invalid ones follow in input order and are never visible.
func (d *Detector) Process(suggestions []models.Suggestion, body string) []models.DisplaySuggestion {
	display, _ := d.Resolve(suggestions, body)
	return display
}

// Resolve is Process that also returns the detected conflicts.
func (d *Detector) Resolve(suggestions []models.Suggestion, body string) ([]models.DisplaySuggestion, []models.Conflict) {
	bodyRunes := []rune(body)
	now := d.now()

	valid := make([]models.DisplaySuggestion, 0, len(suggestions))
	var invalid []models.DisplaySuggestion
	for _, s := range suggestions {
		ok, actual := d.Validate(&s, bodyRunes)
		ds := models.DisplaySuggestion{
			Suggestion:    s,
			IsValid:       ok,
			ActualText:    actual,
			ConflictsWith: []string{},
		}
		if ok {
			valid = append(valid, ds)
		} else {
			invalid = append(invalid, ds)
		}
	}

	conflicts := DetectConflicts(valid)
	peers := make(map[string][]string, len(valid))
	for _, c := range conflicts {
		peers[c.SuggestionIDA] = append(peers[c.SuggestionIDA], c.SuggestionIDB)
		peers[c.SuggestionIDB] = append(peers[c.SuggestionIDB], c.SuggestionIDA)
	}

	for i := range valid {
		ds := &valid[i]
		base := d.BasePriority(&ds.Suggestion)
		ds.DisplayPriority = base
		if ids := peers[ds.ID]; len(ids) > 0 {
			ds.ConflictsWith = ids
			ds.DisplayPriority = d.strategy.Adjust(&ds.Suggestion, base, now)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if a.DisplayPriority != b.DisplayPriority {
			return a.DisplayPriority > b.DisplayPriority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	rankOf := make(map[string]int, len(valid))
	for rank := range valid {
		rankOf[valid[rank].ID] = rank
	}

	// A suggestion is shown only when it outranks every suggestion it conflicts with.
	for rank := range valid {
		ds := &valid[rank]
		ds.ZIndex = d.cfg.ZIndexBase - rank
		ds.IsVisible = true
		for _, peer := range ds.ConflictsWith {
			if rankOf[peer] < rank {
				ds.IsVisible = false
				break
			}
		}
	}

	return append(valid, invalid...), conflicts
}

// Validate checks a suggestion's range against body and reports whether it
// still applies, along with the text currently at that range.
func (d *Detector) Validate(s *models.Suggestion, body []rune) (bool, string) {
	start, end := s.StartOffset, s.EndOffset
	if start < 0 || end <= start || end > len(body) {
		return false, ""
	}
	actual := string(body[start:end])
	if end-start > d.cfg.MaxContextLength {
		return false, actual
	}
	return d.textMatches(s.AnchorText(), actual), actual
}

func (d *Detector) textMatches(anchor, actual string) bool {
	if anchor == actual {
		return true
	}
	if normalizeSpace(anchor) == normalizeSpace(actual) {
		return true
	}
	if anchor != "" && strings.Contains(actual, anchor) {
		return true
	}
	a, b := []rune(anchor), []rune(actual)
	if len(a) > d.cfg.SimilarityMinLength && len(b) > d.cfg.SimilarityMinLength {
		return positionalSimilarity(a, b) >= d.cfg.SimilarityThreshold
	}
	return false
}

// BasePriority is the priority weight plus the type weight.
func (d *Detector) BasePriority(s *models.Suggestion) float64 {
	return float64(d.cfg.PriorityWeights[s.Priority] + d.cfg.TypeWeights[s.Type])
}

// DetectConflicts returns one Conflict per overlapping pair, in input order.
func DetectConflicts(suggestions []models.DisplaySuggestion) []models.Conflict {
	var conflicts []models.Conflict
	for i := 0; i < len(suggestions); i++ {
		for j := i + 1; j < len(suggestions); j++ {
			if c, ok := Classify(&suggestions[i].Suggestion, &suggestions[j].Suggestion); ok {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

// Classify reports whether the ranges of a and b overlap and how.
func Classify(a, b *models.Suggestion) (models.Conflict, bool) {
	if !(a.StartOffset < b.EndOffset && b.StartOffset < a.EndOffset) {
		return models.Conflict{}, false
	}

	kind := models.ConflictOverlap
	switch {
	case a.StartOffset == b.StartOffset && a.EndOffset == b.EndOffset:
		kind = models.ConflictExact
	case contains(a, b) || contains(b, a):
		kind = models.ConflictNested
	}

	return models.Conflict{
		SuggestionIDA: a.ID,
		SuggestionIDB: b.ID,
		OverlapStart:  max(a.StartOffset, b.StartOffset),
		OverlapEnd:    min(a.EndOffset, b.EndOffset),
		Kind:          kind,
	}, true
}

func contains(outer, inner *models.Suggestion) bool {
	return outer.StartOffset <= inner.StartOffset && inner.EndOffset <= outer.EndOffset
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// positionalSimilarity counts characters equal at the same index, divided by
// the longer length.
func positionalSimilarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	same := 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(longest)
}
