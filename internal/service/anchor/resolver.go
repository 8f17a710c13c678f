// Package anchor turns an agent's approximate text reference into an exact,
// content-verified character range of a document body.
//
// All offsets are rune (character) offsets, never byte offsets, so that
// anchors survive multi-byte text the same way an editor counts characters.
package anchor

import (
	"errors"
	"fmt"
	"strconv"

	"redline/internal/config"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrAnchorNotFound means textToReplace does not occur in the body.
	ErrAnchorNotFound = errors.New("anchor text not found")

	// ErrRangeInvalid means the computed range is empty or out of bounds.
	ErrRangeInvalid = errors.New("anchor range invalid")

	// ErrTextMismatch means the body at the computed range differs from the anchor text.
	ErrTextMismatch = errors.New("anchor text mismatch")
)

// Range is a half-open [Start, End) character range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of characters covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Anchor is a verified range plus the context snapshot captured around it.
type Anchor struct {
	Range
	Text          string `json:"text"`
	ContextBefore string `json:"contextBefore"`
	ContextAfter  string `json:"contextAfter"`
	ContextHash   string `json:"contextHash"`
}

// Resolver locates anchor text in a document body.
type Resolver struct {
	tolerance     int
	contextWindow int
}

// NewResolver creates a resolver from the engine configuration.
func NewResolver(cfg *config.Engine) *Resolver {
	return &Resolver{
		tolerance:     cfg.Anchor.Tolerance,
		contextWindow: cfg.Anchor.ContextWindow,
	}
}

// Resolve finds the exact range of text in body.
//
// A hint outside the body counts as no hint. A valid hint first narrows the
// search to a tolerance window around it; when the window holds no match the
// whole body is scanned.
// With several candidates the one starting closest to the hint wins (ties go
// to the earliest), and without a hint the first occurrence wins.
func (r *Resolver) Resolve(body, text string, hint *int) (Range, error) {
	return r.resolveRunes([]rune(body), []rune(text), hint)
}

// Anchor resolves text in body and captures the surrounding context.
func (r *Resolver) Anchor(body, text string, hint *int) (*Anchor, error) {
	bodyRunes := []rune(body)
	rng, err := r.resolveRunes(bodyRunes, []rune(text), hint)
	if err != nil {
		return nil, err
	}

	before := string(bodyRunes[max(0, rng.Start-r.contextWindow):rng.Start])
	after := string(bodyRunes[rng.End:min(len(bodyRunes), rng.End+r.contextWindow)])

	return &Anchor{
		Range:         rng,
		Text:          text,
		ContextBefore: before,
		ContextAfter:  after,
		ContextHash:   ContextHash(before, text, after),
	}, nil
}

func (r *Resolver) resolveRunes(body, text []rune, hint *int) (Range, error) {
	if len(text) == 0 {
		return Range{}, fmt.Errorf("%w: empty anchor text", ErrRangeInvalid)
	}

	if hint != nil && (*hint < 0 || *hint >= len(body)) {
		hint = nil
	}

	start := -1
	if hint != nil {
		lo := max(0, *hint-r.tolerance)
		hi := min(len(body), *hint+r.tolerance+len(text))
		start = nearest(occurrences(body, text, lo, hi), *hint)
	}

	if start < 0 {
		all := occurrences(body, text, 0, len(body))
		if len(all) == 0 {
			return Range{}, ErrAnchorNotFound
		}
		start = all[0]
		if hint != nil {
			start = nearest(all, *hint)
		}
	}

	rng := Range{Start: start, End: start + len(text)}
	if err := Verify(body, text, rng); err != nil {
		return Range{}, err
	}
	return rng, nil
}

// Verify checks that rng is a non-empty in-bounds range of body holding exactly text.
func Verify(body, text []rune, rng Range) error {
	if rng.Start < 0 || rng.End <= rng.Start || rng.End > len(body) {
		return fmt.Errorf("%w: [%d,%d) in body of %d characters", ErrRangeInvalid, rng.Start, rng.End, len(body))
	}
	if !equalRunes(body[rng.Start:rng.End], text) {
		return fmt.Errorf("%w at [%d,%d)", ErrTextMismatch, rng.Start, rng.End)
	}
	return nil
}

// ContextHash fingerprints the local neighborhood of an anchor.
func ContextHash(before, text, after string) string {
	h := xxhash.New()
	_, _ = h.WriteString(before)
	_, _ = h.WriteString(text)
	_, _ = h.WriteString(after)
	return fmt.Sprintf("%016x", h.Sum64())
}

// occurrences returns every start index of text lying entirely within body[lo:hi].
func occurrences(body, text []rune, lo, hi int) []int {
	var found []int
	for i := lo; i+len(text) <= hi; i++ {
		if body[i] == text[0] && equalRunes(body[i:i+len(text)], text) {
			found = append(found, i)
		}
	}
	return found
}

// nearest returns the candidate closest to hint, the earliest on ties, or -1.
func nearest(candidates []int, hint int) int {
	best, bestDist := -1, 0
	for _, c := range candidates {
		d := abs(c - hint)
		if best < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Slice returns body[start:end] in characters, clipped to the body bounds.
func Slice(body string, start, end int) string {
	runes := []rune(body)
	start = min(max(start, 0), len(runes))
	end = min(max(end, start), len(runes))
	return string(runes[start:end])
}

// Len returns the character length of s.
func Len(s string) int {
	return len([]rune(s))
}

// FormatRange renders a range for logs.
func FormatRange(r Range) string {
	return "[" + strconv.Itoa(r.Start) + "," + strconv.Itoa(r.End) + ")"
}
