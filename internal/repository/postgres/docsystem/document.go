package docsystem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"redline/internal/domain"
	models "redline/internal/domain/models/docsystem"
	docsysRepo "redline/internal/domain/repositories/docsystem"
	"redline/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *postgres.RepositoryConfig) docsysRepo.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create creates a new document. An empty ID is generated.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (id, tenant_id, body, version_major, version_minor, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.Body,
		doc.Version.Major,
		doc.Version.Minor,
		doc.Status,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("document '%s' already exists", doc.ID),
				ResourceType: "document",
				ResourceID:   doc.ID,
			}
		}
		return fmt.Errorf("create document: %w", err)
	}

	r.logger.Debug("document created", "document_id", doc.ID, "tenant_id", doc.TenantID)
	return nil
}

// GetByID retrieves a document scoped to a tenant
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id, tenantID string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, body, version_major, version_minor, status, created_at, updated_at
		FROM %s
		WHERE id = $1 AND tenant_id = $2
	`, r.tables.Documents)

	var doc models.Document
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, tenantID).Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.Body,
		&doc.Version.Major,
		&doc.Version.Minor,
		&doc.Status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return &doc, nil
}

// Update replaces body, version and status of an existing document
func (r *PostgresDocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s
		SET body = $1, version_major = $2, version_minor = $3, status = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		doc.Body,
		doc.Version.Major,
		doc.Version.Minor,
		doc.Status,
		doc.UpdatedAt,
		doc.ID,
		doc.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}

	return nil
}
