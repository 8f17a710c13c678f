package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"redline/internal/domain"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
	"redline/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const columns = `id, tenant_id, document_id, version_major, version_minor, start_offset, end_offset,
	text_to_replace, context_before, context_after, context_hash, replace_with, reason,
	priority, type, status, status_reason, created_at, updated_at, expires_at`

// PostgresSuggestionRepository implements SuggestionRepository and BatchCreator
type PostgresSuggestionRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewSuggestionRepository creates a new suggestion repository
func NewSuggestionRepository(config *postgres.RepositoryConfig) *PostgresSuggestionRepository {
	return &PostgresSuggestionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

var (
	_ suggestionRepo.SuggestionRepository = (*PostgresSuggestionRepository)(nil)
	_ suggestionRepo.BatchCreator         = (*PostgresSuggestionRepository)(nil)
)

func (r *PostgresSuggestionRepository) insertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, r.tables.Suggestions, columns)
}

func insertArgs(s *models.Suggestion) []interface{} {
	return []interface{}{
		s.ID,
		s.TenantID,
		s.DocumentID,
		s.ContentVersionAtCreation.Major,
		s.ContentVersionAtCreation.Minor,
		s.StartOffset,
		s.EndOffset,
		s.TextToReplace,
		s.ContextBefore,
		s.ContextAfter,
		s.ContextHash,
		s.ReplaceWith,
		s.Reason,
		s.Priority,
		s.Type,
		s.Status,
		s.StatusReason,
		s.CreatedAt,
		s.UpdatedAt,
		s.ExpiresAt,
	}
}

// Create persists a new suggestion
func (r *PostgresSuggestionRepository) Create(ctx context.Context, s *models.Suggestion) error {
	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, r.insertQuery(), insertArgs(s)...); err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("suggestion '%s' already exists", s.ID),
				ResourceType: "suggestion",
				ResourceID:   s.ID,
			}
		}
		return postgres.StoreError("create suggestion", err)
	}
	return nil
}

// CreateBatch inserts items in one round trip. The batch runs in an implicit
// transaction, so any failure fails every item.
func (r *PostgresSuggestionRepository) CreateBatch(ctx context.Context, items []*models.Suggestion) ([]*models.Suggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := r.insertQuery()
	for _, s := range items {
		batch.Queue(query, insertArgs(s)...)
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	results := executor.SendBatch(ctx, batch)

	var batchErr error
	for range items {
		if _, err := results.Exec(); err != nil && batchErr == nil {
			batchErr = err
		}
	}
	if err := results.Close(); err != nil && batchErr == nil {
		batchErr = err
	}

	if batchErr != nil {
		return items, postgres.StoreError("create suggestion batch", batchErr)
	}
	return nil, nil
}

// Get retrieves a suggestion by key
func (r *PostgresSuggestionRepository) Get(ctx context.Context, key suggestionRepo.Key) (*models.Suggestion, error) {
	if !isUUID(key.SuggestionID) || !isUUID(key.DocumentID) {
		return nil, fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND tenant_id = $2 AND document_id = $3
	`, columns, r.tables.Suggestions)

	executor := postgres.GetExecutor(ctx, r.pool)
	s, err := scanSuggestion(executor.QueryRow(ctx, query, key.SuggestionID, key.TenantID, key.DocumentID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
		}
		return nil, postgres.StoreError("get suggestion", err)
	}
	return s, nil
}

// Update writes the mutable fields of an existing suggestion.
// Offsets, anchor text and context are immutable after creation.
func (r *PostgresSuggestionRepository) Update(ctx context.Context, s *models.Suggestion) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET version_major = $1, version_minor = $2, status = $3, status_reason = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND document_id = $8
	`, r.tables.Suggestions)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		s.ContentVersionAtCreation.Major,
		s.ContentVersionAtCreation.Minor,
		s.Status,
		s.StatusReason,
		s.UpdatedAt,
		s.ID,
		s.TenantID,
		s.DocumentID,
	)
	if err != nil {
		return postgres.StoreError("update suggestion", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("suggestion %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete physically removes a suggestion
func (r *PostgresSuggestionRepository) Delete(ctx context.Context, key suggestionRepo.Key) error {
	if !isUUID(key.SuggestionID) || !isUUID(key.DocumentID) {
		return fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND tenant_id = $2 AND document_id = $3
	`, r.tables.Suggestions)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, key.SuggestionID, key.TenantID, key.DocumentID)
	if err != nil {
		return postgres.StoreError("delete suggestion", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
	}
	return nil
}

// Scan pages through a document's suggestions ordered by (created_at, id).
// The cursor is the position of the last item of the previous page.
func (r *PostgresSuggestionRepository) Scan(ctx context.Context, prefix suggestionRepo.Prefix, cursor string, limit int) (*suggestionRepo.Page, error) {
	if !isUUID(prefix.DocumentID) {
		return &suggestionRepo.Page{}, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query, args, err := r.buildScanQuery(prefix, cursor, limit)
	if err != nil {
		return nil, err
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.StoreError("scan suggestions", err)
	}
	defer rows.Close()

	page := &suggestionRepo.Page{}
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, postgres.StoreError("scan suggestion row", err)
		}
		page.Items = append(page.Items, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.StoreError("iterate suggestions", err)
	}

	// One extra row was requested to learn whether another page exists.
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (r *PostgresSuggestionRepository) buildScanQuery(prefix suggestionRepo.Prefix, cursor string, limit int) (string, []interface{}, error) {
	conditions := []string{"tenant_id = $1", "document_id = $2"}
	args := []interface{}{prefix.TenantID, prefix.DocumentID}

	if prefix.Version != nil {
		args = append(args, prefix.Version.Major, prefix.Version.Minor)
		conditions = append(conditions, fmt.Sprintf("version_major = $%d AND version_minor = $%d", len(args)-1, len(args)))
	}
	if prefix.Status != nil {
		args = append(args, *prefix.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if cursor != "" {
		createdAt, id, err := decodeCursor(cursor)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		args = append(args, createdAt, id)
		conditions = append(conditions, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at, id
		LIMIT $%d
	`, columns, r.tables.Suggestions, strings.Join(conditions, " AND "), len(args))

	return query, args, nil
}

func scanSuggestion(row pgx.Row) (*models.Suggestion, error) {
	var s models.Suggestion
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.DocumentID,
		&s.ContentVersionAtCreation.Major,
		&s.ContentVersionAtCreation.Minor,
		&s.StartOffset,
		&s.EndOffset,
		&s.TextToReplace,
		&s.ContextBefore,
		&s.ContextAfter,
		&s.ContextHash,
		&s.ReplaceWith,
		&s.Reason,
		&s.Priority,
		&s.Type,
		&s.Status,
		&s.StatusReason,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || !isUUID(id) {
		return time.Time{}, "", errors.New("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor time: %w", err)
	}
	return createdAt, id, nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
