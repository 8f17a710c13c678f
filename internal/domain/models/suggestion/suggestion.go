package suggestion

import (
	"time"

	"redline/internal/domain/models/docsystem"
)

// Suggestion is a proposed edit anchored to an exact character range of a
// document version. Field names are the wire contract shared with the
// external store and the reviewer agents.
type Suggestion struct {
	ID                       string            `json:"id"`
	TenantID                 string            `json:"tenantId"`
	DocumentID               string            `json:"documentId"`
	ContentVersionAtCreation docsystem.Version `json:"contentVersionAtCreation"`
	StartOffset              int               `json:"startOffset"`
	EndOffset                int               `json:"endOffset"`
	TextToReplace            string            `json:"textToReplace"` // exact anchor text
	ContextBefore            string            `json:"contextBefore"`
	ContextAfter             string            `json:"contextAfter"`
	ContextHash              string            `json:"contextHash"`
	ReplaceWith              string            `json:"replaceWith"`
	Reason                   string            `json:"reason"`
	Priority                 Priority          `json:"priority"`
	Type                     Type              `json:"type"`
	Status                   Status            `json:"status"`
	StatusReason             string            `json:"statusReason,omitempty"`
	CreatedAt                time.Time         `json:"createdAt"`
	UpdatedAt                time.Time         `json:"updatedAt"`
	ExpiresAt                time.Time         `json:"expiresAt"`
}

// AnchorText returns the exact text the suggestion is anchored to.
func (s *Suggestion) AnchorText() string {
	return s.TextToReplace
}

// IsExpired reports whether the retention window has passed.
func (s *Suggestion) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Candidate is an edit proposed by a reviewer agent before anchoring.
// StartOffset is advisory (a hint); a negative value means no hint.
type Candidate struct {
	StartOffset   int      `json:"startOffset"`
	EndOffset     int      `json:"endOffset"`
	TextToReplace string   `json:"textToReplace"`
	ReplaceWith   string   `json:"replaceWith"`
	Reason        string   `json:"reason"`
	Priority      Priority `json:"priority"`
	Type          Type     `json:"type"`
}

// Hint returns the advisory start offset, or nil when none was supplied.
func (c *Candidate) Hint() *int {
	if c.StartOffset < 0 {
		return nil
	}
	hint := c.StartOffset
	return &hint
}
