// Package revalidation re-checks anchored suggestions after a document body
// changes and retires the ones that no longer apply.
package revalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"redline/internal/config"
	"redline/internal/domain"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
)

// Outcome is what a revalidation pass decided for one suggestion.
type Outcome int

const (
	OutcomeMigrate Outcome = iota
	OutcomeSkip
	OutcomeReject
)

// Revalidator migrates still-valid pending suggestions to a new document
// version and closes the rest.
type Revalidator struct {
	repo     suggestionRepo.SuggestionRepository
	stats    suggestionSvc.StatsSink
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// NewRevalidator creates a revalidator. stats may be nil.
func NewRevalidator(
	repo suggestionRepo.SuggestionRepository,
	stats suggestionSvc.StatsSink,
	cfg *config.Engine,
	logger *slog.Logger,
) *Revalidator {
	return &Revalidator{
		repo:     repo,
		stats:    stats,
		pageSize: cfg.Revalidation.ScanPageSize,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock returns a copy of the revalidator that reads time from now.
func (r *Revalidator) WithClock(now func() time.Time) *Revalidator {
	cp := *r
	cp.now = now
	return &cp
}

// Check decides what happens to a pending suggestion given the new body.
// The reason is empty for OutcomeMigrate.
func Check(s *models.Suggestion, newBody string, terminalPublish bool) (Outcome, string) {
	if terminalPublish {
		return OutcomeReject, models.ReasonPublished
	}
	anchor := s.AnchorText()
	if !strings.Contains(newBody, anchor) {
		return OutcomeSkip, models.ReasonAnchorMissing
	}
	if s.ContextBefore != "" || s.ContextAfter != "" {
		neighborhood := strings.TrimSpace(s.ContextBefore + anchor + s.ContextAfter)
		if !strings.Contains(newBody, neighborhood) {
			return OutcomeSkip, models.ReasonContextMismatch
		}
	}
	return OutcomeMigrate, ""
}

// Revalidate runs one pass over the document's pending suggestions.
//
// Per-suggestion store failures are counted in the report and never stop the
// pass; only a failed scan aborts it.
func (r *Revalidator) Revalidate(ctx context.Context, req *suggestionSvc.RevalidateRequest) (*suggestionSvc.RevalidationReport, error) {
	pending := models.StatusPending
	prefix := suggestionRepo.Prefix{
		TenantID:   req.TenantID,
		DocumentID: req.DocumentID,
		Status:     &pending,
	}

	// Collect first so updates never disturb the scan cursor.
	var items []models.Suggestion
	err := suggestionRepo.ScanAll(ctx, r.repo, prefix, r.pageSize, func(s *models.Suggestion) error {
		items = append(items, *s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending suggestions: %w", errors.Join(domain.ErrStore, err))
	}

	report := &suggestionSvc.RevalidationReport{Scanned: len(items)}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		s := &items[i]
		outcome, reason := Check(s, req.NewBody, req.IsTerminalPublish)
		if err := r.apply(ctx, s, outcome, reason, req); err != nil {
			report.Failed++
			r.logger.Warn("revalidation update failed",
				"document_id", req.DocumentID,
				"suggestion_id", s.ID,
				"error", err,
			)
			continue
		}

		switch outcome {
		case OutcomeMigrate:
			report.Migrated++
		case OutcomeSkip:
			report.Skipped++
		case OutcomeReject:
			report.Rejected++
		}
	}

	r.logger.Info("revalidation complete",
		"document_id", req.DocumentID,
		"version", req.NewVersion.String(),
		"publish", req.IsTerminalPublish,
		"scanned", report.Scanned,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"rejected", report.Rejected,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *Revalidator) apply(ctx context.Context, s *models.Suggestion, outcome Outcome, reason string, req *suggestionSvc.RevalidateRequest) error {
	s.UpdatedAt = r.now().UTC()

	if outcome == OutcomeMigrate {
		s.ContentVersionAtCreation = req.NewVersion
		return r.repo.Update(ctx, s)
	}

	from := s.Status
	s.Status = models.StatusSkipped
	if outcome == OutcomeReject {
		s.Status = models.StatusRejected
	}
	s.StatusReason = reason
	if err := r.repo.Update(ctx, s); err != nil {
		return err
	}

	r.recordStats(ctx, s.TenantID, suggestionSvc.TransitionDeltas(s.Type, from, s.Status))
	return nil
}

func (r *Revalidator) recordStats(ctx context.Context, tenantID string, deltas []suggestionSvc.StatsDelta) {
	if r.stats == nil {
		return
	}
	if err := r.stats.Record(ctx, tenantID, deltas); err != nil {
		r.logger.Warn("failed to record suggestion stats", "tenant_id", tenantID, "error", err)
	}
}
