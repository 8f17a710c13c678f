package suggestion

import (
	"context"

	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
)

// SuggestionService handles suggestion business logic
type SuggestionService interface {
	// CreateBatch anchors and persists a batch of agent candidates.
	// Individual item failures only reduce the returned count.
	CreateBatch(ctx context.Context, req *CreateBatchRequest) (int, error)

	// ResolveForDisplay returns the ordered display list for a document version
	ResolveForDisplay(ctx context.Context, req *ResolveRequest) (*DisplayResult, error)

	// Revalidate re-checks pending suggestions against a new document body
	Revalidate(ctx context.Context, req *RevalidateRequest) (*RevalidationReport, error)

	// UpdateStatus applies a one-way status transition (deleted removes the record)
	UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*models.Suggestion, error)

	// PruneExpired removes pending suggestions whose retention window has passed
	PruneExpired(ctx context.Context, tenantID, documentID string) (int, error)
}

// StatsSink receives per-type, per-status delta counters after each
// suggestion transition. Implementations are best effort.
type StatsSink interface {
	Record(ctx context.Context, tenantID string, deltas []StatsDelta) error
}

// StatsDelta is a signed change to the count of suggestions of one type in one status.
type StatsDelta struct {
	Type   models.Type   `json:"type"`
	Status models.Status `json:"status"`
	Delta  int64         `json:"delta"`
}

// TransitionDeltas returns the deltas produced by moving one suggestion of
// type t from status from to status to.
func TransitionDeltas(t models.Type, from, to models.Status) []StatsDelta {
	return []StatsDelta{
		{Type: t, Status: from, Delta: -1},
		{Type: t, Status: to, Delta: 1},
	}
}

// CreateBatchRequest represents a suggestion creation request from a reviewer agent
type CreateBatchRequest struct {
	TenantID    string             `json:"-"` // Set by handler from auth context
	DocumentID  string             `json:"-"` // Set by handler from path
	Suggestions []models.Candidate `json:"suggestions"`
}

// ResolveRequest asks for the display list of one document version.
// A nil Version means the document's current version.
type ResolveRequest struct {
	TenantID   string
	DocumentID string
	Version    *docsystem.Version
}

// DisplayResult is the read-path response
type DisplayResult struct {
	DocumentID  string                     `json:"documentId"`
	Version     docsystem.Version          `json:"version"`
	Suggestions []models.DisplaySuggestion `json:"suggestions"`
	Conflicts   []models.Conflict          `json:"conflicts"`
}

// RevalidateRequest is sent whenever a document body changes
type RevalidateRequest struct {
	TenantID          string            `json:"-"`
	DocumentID        string            `json:"-"`
	NewBody           string            `json:"newBody"`
	NewVersion        docsystem.Version `json:"newVersion"`
	IsTerminalPublish bool              `json:"isTerminalPublish"`
}

// RevalidationReport summarises one revalidation pass
type RevalidationReport struct {
	Scanned  int `json:"scanned"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// UpdateStatusRequest represents a user-driven status change
type UpdateStatusRequest struct {
	TenantID     string        `json:"-"`
	DocumentID   string        `json:"-"`
	SuggestionID string        `json:"-"`
	Status       models.Status `json:"status"`
}
