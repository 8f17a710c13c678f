package suggestion

import (
	"context"

	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
)

// Key addresses a single suggestion record.
type Key struct {
	TenantID     string
	DocumentID   string
	SuggestionID string
}

// Prefix selects the suggestions of one document, optionally narrowed to a
// content version and/or a status.
type Prefix struct {
	TenantID   string
	DocumentID string
	Version    *docsystem.Version
	Status     *models.Status
}

// Matches reports whether s falls under the prefix.
func (p Prefix) Matches(s *models.Suggestion) bool {
	if s.TenantID != p.TenantID || s.DocumentID != p.DocumentID {
		return false
	}
	if p.Version != nil && s.ContentVersionAtCreation != *p.Version {
		return false
	}
	if p.Status != nil && s.Status != *p.Status {
		return false
	}
	return true
}

// Page is one slice of a prefix scan. An empty NextCursor means the scan is complete.
type Page struct {
	Items      []models.Suggestion
	NextCursor string
}

// SuggestionRepository is the suggestion store adapter.
// Implementations only need keyed CRUD and a paginated prefix scan.
type SuggestionRepository interface {
	// Create persists a new suggestion
	Create(ctx context.Context, s *models.Suggestion) error

	// Get retrieves a suggestion by key
	Get(ctx context.Context, key Key) (*models.Suggestion, error)

	// Update overwrites an existing suggestion
	Update(ctx context.Context, s *models.Suggestion) error

	// Delete physically removes a suggestion
	Delete(ctx context.Context, key Key) error

	// Scan returns up to limit suggestions under prefix, starting after cursor
	Scan(ctx context.Context, prefix Prefix, cursor string, limit int) (*Page, error)
}

// BatchCreator is implemented by stores that can persist several suggestions
// in one round trip. Failed holds the items the store could not write.
type BatchCreator interface {
	CreateBatch(ctx context.Context, items []*models.Suggestion) (failed []*models.Suggestion, err error)
}

// ScanAll walks every page of a prefix scan and calls fn for each item.
// Iteration stops at the first error returned by the store or by fn.
func ScanAll(ctx context.Context, repo SuggestionRepository, prefix Prefix, pageSize int, fn func(*models.Suggestion) error) error {
	cursor := ""
	for {
		page, err := repo.Scan(ctx, prefix, cursor, pageSize)
		if err != nil {
			return err
		}
		for i := range page.Items {
			if err := fn(&page.Items[i]); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}
