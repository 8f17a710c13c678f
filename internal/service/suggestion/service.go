package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"redline/internal/config"
	"redline/internal/domain"
	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
	docsysRepo "redline/internal/domain/repositories/docsystem"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/service/anchor"
	"redline/internal/service/conflict"
	"redline/internal/service/revalidation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// suggestionService implements the SuggestionService interface
type suggestionService struct {
	docRepo     docsysRepo.DocumentRepository
	repo        suggestionRepo.SuggestionRepository
	stats       suggestionSvc.StatsSink
	resolver    *anchor.Resolver
	detector    *conflict.Detector
	revalidator *revalidation.Revalidator
	cfg         *config.Engine
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// Option customises a suggestion service
type Option func(*suggestionService)

// WithClock sets the time source for createdAt, expiry and dedup windows
func WithClock(now func() time.Time) Option {
	return func(s *suggestionService) { s.now = now }
}

// WithIDGenerator sets how suggestion IDs are minted
func WithIDGenerator(newID func() string) Option {
	return func(s *suggestionService) { s.newID = newID }
}

// NewSuggestionService creates a new suggestion service. stats may be nil.
func NewSuggestionService(
	docRepo docsysRepo.DocumentRepository,
	repo suggestionRepo.SuggestionRepository,
	stats suggestionSvc.StatsSink,
	cfg *config.Engine,
	logger *slog.Logger,
	opts ...Option,
) (suggestionSvc.SuggestionService, error) {
	detector, err := conflict.NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create conflict detector: %w", err)
	}

	s := &suggestionService{
		docRepo:  docRepo,
		repo:     repo,
		stats:    stats,
		resolver: anchor.NewResolver(cfg),
		detector: detector,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = s.detector.WithClock(s.now)
	s.revalidator = revalidation.NewRevalidator(repo, stats, cfg, logger).WithClock(s.now)
	return s, nil
}

// CreateBatch anchors each candidate against the document's current body and
// persists the ones that resolve. Item failures are logged and only lower
// the returned count; a missing or locked document fails the whole call.
func (s *suggestionService) CreateBatch(ctx context.Context, req *suggestionSvc.CreateBatchRequest) (int, error) {
	if err := s.validateCreateBatchRequest(req); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	doc, err := s.editableDocument(ctx, req.DocumentID, req.TenantID)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	anchored := s.anchorCandidates(ctx, doc, req.Suggestions, now)

	fresh, err := s.dropDuplicates(ctx, doc, anchored, now)
	if err != nil {
		// Dedup is an optimisation; a failed lookup must not block creation.
		s.logger.Warn("dedup lookup failed", "document_id", doc.ID, "error", err)
		fresh = anchored
	}

	created := s.persist(ctx, fresh)

	s.logger.Info("suggestion batch processed",
		"document_id", doc.ID,
		"version", doc.Version.String(),
		"requested", len(req.Suggestions),
		"anchored", len(anchored),
		"created", len(created),
	)

	if len(created) > 0 {
		deltas := make([]suggestionSvc.StatsDelta, 0, len(created))
		for _, sg := range created {
			deltas = append(deltas, suggestionSvc.StatsDelta{Type: sg.Type, Status: models.StatusPending, Delta: 1})
		}
		s.recordStats(ctx, req.TenantID, deltas)
	}
	return len(created), nil
}

// anchorCandidates resolves candidates concurrently. Every goroutine returns
// nil so one failure never cancels its siblings.
func (s *suggestionService) anchorCandidates(ctx context.Context, doc *docsystem.Document, candidates []models.Candidate, now time.Time) []*models.Suggestion {
	results := make([]*models.Suggestion, len(candidates))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Creation.Concurrency)
	for i := range candidates {
		c := &candidates[i]
		g.Go(func() error {
			if err := validateCandidate(c); err != nil {
				s.logger.Warn("suggestion rejected", "document_id", doc.ID, "index", i, "error", err)
				return nil
			}
			a, err := s.resolver.Anchor(doc.Body, c.TextToReplace, c.Hint())
			if err != nil {
				s.logger.Warn("suggestion not anchored", "document_id", doc.ID, "index", i, "error", err)
				return nil
			}
			results[i] = &models.Suggestion{
				ID:                       s.newID(),
				TenantID:                 doc.TenantID,
				DocumentID:               doc.ID,
				ContentVersionAtCreation: doc.Version,
				StartOffset:              a.Start,
				EndOffset:                a.End,
				TextToReplace:            a.Text,
				ContextBefore:            a.ContextBefore,
				ContextAfter:             a.ContextAfter,
				ContextHash:              a.ContextHash,
				ReplaceWith:              c.ReplaceWith,
				Reason:                   c.Reason,
				Priority:                 c.Priority,
				Type:                     c.Type,
				Status:                   models.StatusPending,
				CreatedAt:                now,
				UpdatedAt:                now,
				ExpiresAt:                now.Add(s.cfg.Creation.Retention),
			}
			return nil
		})
	}
	_ = g.Wait()

	anchored := make([]*models.Suggestion, 0, len(results))
	for _, sg := range results {
		if sg != nil {
			anchored = append(anchored, sg)
		}
	}
	return anchored
}

type dedupKey struct {
	contextHash string
	text        string
	replaceWith string
}

func keyOf(s *models.Suggestion) dedupKey {
	return dedupKey{contextHash: s.ContextHash, text: s.TextToReplace, replaceWith: s.ReplaceWith}
}

// dropDuplicates removes items that repeat a pending suggestion created for
// the same document version within the dedup window, or an earlier item of
// the same batch.
func (s *suggestionService) dropDuplicates(ctx context.Context, doc *docsystem.Document, items []*models.Suggestion, now time.Time) ([]*models.Suggestion, error) {
	window := s.cfg.Creation.DedupWindow
	if window <= 0 || len(items) == 0 {
		return items, nil
	}

	seen := make(map[dedupKey]bool)
	pending := models.StatusPending
	version := doc.Version
	prefix := suggestionRepo.Prefix{TenantID: doc.TenantID, DocumentID: doc.ID, Version: &version, Status: &pending}
	err := suggestionRepo.ScanAll(ctx, s.repo, prefix, s.cfg.Revalidation.ScanPageSize, func(existing *models.Suggestion) error {
		if now.Sub(existing.CreatedAt) <= window {
			seen[keyOf(existing)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fresh := items[:0:0]
	for _, sg := range items {
		k := keyOf(sg)
		if seen[k] {
			s.logger.Debug("duplicate suggestion dropped", "document_id", doc.ID, "text", sg.TextToReplace)
			continue
		}
		seen[k] = true
		fresh = append(fresh, sg)
	}
	return fresh, nil
}

// persist writes items and returns the ones that landed. Stores with a batch
// path get one batch call; otherwise each item is written on its own goroutine.
func (s *suggestionService) persist(ctx context.Context, items []*models.Suggestion) []*models.Suggestion {
	if len(items) == 0 {
		return nil
	}

	if batcher, ok := s.repo.(suggestionRepo.BatchCreator); ok {
		failed, err := batcher.CreateBatch(ctx, items)
		if err != nil {
			s.logger.Warn("suggestion writes failed", "failed", len(failed), "error", err)
		}
		lost := make(map[*models.Suggestion]bool, len(failed))
		for _, f := range failed {
			lost[f] = true
		}
		created := make([]*models.Suggestion, 0, len(items))
		for _, sg := range items {
			if !lost[sg] {
				created = append(created, sg)
			}
		}
		return created
	}

	ok := make([]atomic.Bool, len(items))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Creation.Concurrency)
	for i, sg := range items {
		g.Go(func() error {
			if err := s.repo.Create(ctx, sg); err != nil {
				s.logger.Warn("suggestion write failed", "suggestion_id", sg.ID, "error", err)
				return nil
			}
			ok[i].Store(true)
			return nil
		})
	}
	_ = g.Wait()

	created := make([]*models.Suggestion, 0, len(items))
	for i, sg := range items {
		if ok[i].Load() {
			created = append(created, sg)
		}
	}
	return created
}

// ResolveForDisplay returns the pending suggestions of a document version,
// validated against the current body and ranked for display.
func (s *suggestionService) ResolveForDisplay(ctx context.Context, req *suggestionSvc.ResolveRequest) (*suggestionSvc.DisplayResult, error) {
	if err := validateResolveRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	doc, err := s.docRepo.GetByID(ctx, req.DocumentID, req.TenantID)
	if err != nil {
		return nil, err
	}

	version := doc.Version
	if req.Version != nil {
		version = *req.Version
	}

	pending := models.StatusPending
	prefix := suggestionRepo.Prefix{TenantID: req.TenantID, DocumentID: req.DocumentID, Version: &version, Status: &pending}

	var items []models.Suggestion
	err = suggestionRepo.ScanAll(ctx, s.repo, prefix, s.cfg.Revalidation.ScanPageSize, func(sg *models.Suggestion) error {
		items = append(items, *sg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}

	display, conflicts := s.detector.Resolve(items, doc.Body)
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}

	return &suggestionSvc.DisplayResult{
		DocumentID:  doc.ID,
		Version:     version,
		Suggestions: display,
		Conflicts:   conflicts,
	}, nil
}

// Revalidate records the new document snapshot and re-checks every pending
// suggestion against it. Notifications older than the stored version are
// ignored.
func (s *suggestionService) Revalidate(ctx context.Context, req *suggestionSvc.RevalidateRequest) (*suggestionSvc.RevalidationReport, error) {
	if err := validateRevalidateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	doc, err := s.docRepo.GetByID(ctx, req.DocumentID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() && !req.IsTerminalPublish {
		return nil, fmt.Errorf("document %s is %s: %w", doc.ID, doc.Status, domain.ErrDocumentLocked)
	}
	if req.NewVersion.Compare(doc.Version) < 0 {
		s.logger.Info("stale revalidation ignored",
			"document_id", doc.ID,
			"current_version", doc.Version.String(),
			"notified_version", req.NewVersion.String(),
		)
		return &suggestionSvc.RevalidationReport{}, nil
	}

	doc.Body = req.NewBody
	doc.Version = req.NewVersion
	if req.IsTerminalPublish {
		doc.Status = docsystem.StatusPublished
	}
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("update document snapshot: %w", err)
	}

	return s.revalidator.Revalidate(ctx, req)
}

// UpdateStatus applies a user-driven transition out of pending.
// Deleting removes the record and returns nil.
func (s *suggestionService) UpdateStatus(ctx context.Context, req *suggestionSvc.UpdateStatusRequest) (*models.Suggestion, error) {
	if err := validateUpdateStatusRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	key := suggestionRepo.Key{TenantID: req.TenantID, DocumentID: req.DocumentID, SuggestionID: req.SuggestionID}
	sg, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if !sg.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf("suggestion %s is %s, cannot become %s: %w",
			sg.ID, sg.Status, req.Status, domain.ErrInvalidTransition)
	}

	from := sg.Status
	if req.Status == models.StatusDeleted {
		if err := s.repo.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("delete suggestion: %w", err)
		}
		s.recordStats(ctx, sg.TenantID, suggestionSvc.TransitionDeltas(sg.Type, from, models.StatusDeleted))
		return nil, nil
	}

	sg.Status = req.Status
	sg.StatusReason = ""
	sg.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, sg); err != nil {
		return nil, fmt.Errorf("update suggestion: %w", err)
	}

	s.recordStats(ctx, sg.TenantID, suggestionSvc.TransitionDeltas(sg.Type, from, sg.Status))
	return sg, nil
}

// PruneExpired deletes pending suggestions past their retention window.
func (s *suggestionService) PruneExpired(ctx context.Context, tenantID, documentID string) (int, error) {
	if tenantID == "" || documentID == "" {
		return 0, fmt.Errorf("%w: tenant and document are required", domain.ErrValidation)
	}

	now := s.now()
	pending := models.StatusPending
	var expired []models.Suggestion
	err := suggestionRepo.ScanAll(ctx, s.repo, suggestionRepo.Prefix{TenantID: tenantID, DocumentID: documentID, Status: &pending},
		s.cfg.Revalidation.ScanPageSize, func(sg *models.Suggestion) error {
			if sg.IsExpired(now) {
				expired = append(expired, *sg)
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("scan expired suggestions: %w", err)
	}

	pruned := 0
	var deltas []suggestionSvc.StatsDelta
	for _, sg := range expired {
		err := s.repo.Delete(ctx, suggestionRepo.Key{TenantID: tenantID, DocumentID: documentID, SuggestionID: sg.ID})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("prune failed", "suggestion_id", sg.ID, "error", err)
			continue
		}
		pruned++
		deltas = append(deltas, suggestionSvc.StatsDelta{Type: sg.Type, Status: models.StatusPending, Delta: -1})
	}

	if pruned > 0 {
		s.logger.Info("expired suggestions pruned", "document_id", documentID, "pruned", pruned)
		s.recordStats(ctx, tenantID, deltas)
	}
	return pruned, nil
}

// editableDocument loads a document and rejects terminal ones
func (s *suggestionService) editableDocument(ctx context.Context, id, tenantID string) (*docsystem.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() {
		return nil, fmt.Errorf("document %s is %s: %w", doc.ID, doc.Status, domain.ErrDocumentLocked)
	}
	return doc, nil
}

// recordStats forwards deltas to the sink; failures are logged and dropped
func (s *suggestionService) recordStats(ctx context.Context, tenantID string, deltas []suggestionSvc.StatsDelta) {
	if s.stats == nil || len(deltas) == 0 {
		return
	}
	if err := s.stats.Record(ctx, tenantID, deltas); err != nil {
		s.logger.Warn("failed to record suggestion stats", "tenant_id", tenantID, "error", err)
	}
}
