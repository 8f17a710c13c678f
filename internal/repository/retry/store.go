package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"redline/internal/domain"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
)

// Store decorates a suggestion repository with the retry policy.
// Reads pass through untouched.
type Store struct {
	inner  suggestionRepo.SuggestionRepository
	policy Policy
	logger *slog.Logger
}

var (
	_ suggestionRepo.SuggestionRepository = (*Store)(nil)
	_ suggestionRepo.BatchCreator         = (*Store)(nil)
)

// NewStore wraps inner with policy
func NewStore(inner suggestionRepo.SuggestionRepository, policy Policy, logger *slog.Logger) *Store {
	return &Store{inner: inner, policy: policy, logger: logger}
}

// Create retries the write per the policy
func (s *Store) Create(ctx context.Context, sg *models.Suggestion) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.inner.Create(ctx, sg)
	})
}

// Get passes through
func (s *Store) Get(ctx context.Context, key suggestionRepo.Key) (*models.Suggestion, error) {
	return s.inner.Get(ctx, key)
}

// Update retries the write per the policy
func (s *Store) Update(ctx context.Context, sg *models.Suggestion) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.inner.Update(ctx, sg)
	})
}

// Delete retries the write per the policy
func (s *Store) Delete(ctx context.Context, key suggestionRepo.Key) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}

// Scan passes through
func (s *Store) Scan(ctx context.Context, prefix suggestionRepo.Prefix, cursor string, limit int) (*suggestionRepo.Page, error) {
	return s.inner.Scan(ctx, prefix, cursor, limit)
}

// CreateBatch writes items through the inner store's batch path when it has
// one, resubmitting only the items that failed. After BatchFailureThreshold
// failed batches the remaining items are written one at a time, each with
// its own retries. The returned slice holds the items that never landed.
func (s *Store) CreateBatch(ctx context.Context, items []*models.Suggestion) ([]*models.Suggestion, error) {
	remaining := items

	if batcher, ok := s.inner.(suggestionRepo.BatchCreator); ok {
		threshold := max(s.policy.BatchFailureThreshold, 1)
		for attempt := 0; attempt < threshold && len(remaining) > 0; attempt++ {
			if attempt > 0 {
				if err := wait(ctx, s.policy.delay(attempt-1)); err != nil {
					return remaining, err
				}
			}
			failed, err := batcher.CreateBatch(ctx, remaining)
			if err == nil && len(failed) == 0 {
				return nil, nil
			}
			s.logger.Warn("suggestion batch write failed",
				"attempt", attempt+1,
				"items", len(remaining),
				"failed", len(failed),
				"error", err,
			)
			if len(failed) > 0 {
				remaining = failed
			}
		}
		s.logger.Info("falling back to individual suggestion writes", "remaining", len(remaining))
	}

	var failed []*models.Suggestion
	var errs []error
	for _, sg := range remaining {
		err := s.Create(ctx, sg)
		// IDs are generated per creation, so an existing key means an
		// earlier partial batch already stored this item.
		if err == nil || errors.Is(err, domain.ErrConflict) {
			continue
		}
		failed = append(failed, sg)
		errs = append(errs, fmt.Errorf("suggestion %s: %w", sg.ID, err))
	}
	return failed, errors.Join(errs...)
}
