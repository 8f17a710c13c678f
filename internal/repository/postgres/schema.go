package postgres

import (
	"context"
	"fmt"

	"redline/internal/domain/repositories"
)

// SchemaStatements returns the DDL for every table and index, in apply order.
func SchemaStatements(tables *TableNames) []string {
	p := tables.Prefix
	return []string{
		`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Documents + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			version_major INTEGER NOT NULL DEFAULT 1,
			version_minor INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Suggestions + ` (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			document_id UUID NOT NULL REFERENCES ` + tables.Documents + `(id) ON DELETE CASCADE,
			version_major INTEGER NOT NULL,
			version_minor INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			text_to_replace TEXT NOT NULL,
			context_before TEXT NOT NULL DEFAULT '',
			context_after TEXT NOT NULL DEFAULT '',
			context_hash TEXT NOT NULL,
			replace_with TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			status_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			CHECK (start_offset >= 0 AND end_offset > start_offset)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `documents_tenant ON ` + tables.Documents + `(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `suggestions_doc_status ON ` + tables.Suggestions + `(tenant_id, document_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `suggestions_scan ON ` + tables.Suggestions + `(tenant_id, document_id, created_at, id)`,
	}
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db repositories.DBTX, tables *TableNames) error {
	for _, stmt := range SchemaStatements(tables) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// DropSchema drops every table in dependency order.
func DropSchema(ctx context.Context, db repositories.DBTX, tables *TableNames) error {
	for _, table := range tables.All() {
		if _, err := db.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
