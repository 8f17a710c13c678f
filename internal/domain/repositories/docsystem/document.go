package docsystem

import (
	"context"

	"redline/internal/domain/models/docsystem"
)

// DocumentReader is the read side of the external document store.
// Suggestion code never writes document bodies.
type DocumentReader interface {
	// GetByID retrieves a document scoped to a tenant
	GetByID(ctx context.Context, id, tenantID string) (*docsystem.Document, error)
}

// DocumentRepository defines data access operations for documents
type DocumentRepository interface {
	DocumentReader

	// Create creates a new document
	Create(ctx context.Context, doc *docsystem.Document) error

	// Update replaces body, version and status of an existing document
	Update(ctx context.Context, doc *docsystem.Document) error
}
