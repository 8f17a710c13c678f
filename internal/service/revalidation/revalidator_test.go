package revalidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"redline/internal/config"
	"redline/internal/domain"
	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/service/conflict"
)

// mockRepo is an in-memory SuggestionRepository preserving insertion order.
type mockRepo struct {
	mu         sync.Mutex
	order      []string
	items      map[string]models.Suggestion
	failUpdate map[string]bool
	scanErr    error
	scanCalls  int
}

func newMockRepo(items ...models.Suggestion) *mockRepo {
	m := &mockRepo{items: map[string]models.Suggestion{}, failUpdate: map[string]bool{}}
	for _, s := range items {
		m.order = append(m.order, s.ID)
		m.items[s.ID] = s
	}
	return m
}

func (m *mockRepo) Create(_ context.Context, s *models.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, s.ID)
	m.items[s.ID] = *s
	return nil
}

func (m *mockRepo) Get(_ context.Context, key suggestionRepo.Key) (*models.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[key.SuggestionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *mockRepo) Update(_ context.Context, s *models.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate[s.ID] {
		return errors.New("write timeout")
	}
	m.items[s.ID] = *s
	return nil
}

func (m *mockRepo) Delete(_ context.Context, key suggestionRepo.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key.SuggestionID)
	return nil
}

func (m *mockRepo) Scan(_ context.Context, prefix suggestionRepo.Prefix, cursor string, limit int) (*suggestionRepo.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	if m.scanErr != nil {
		return nil, m.scanErr
	}

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	page := &suggestionRepo.Page{}
	for i := start; i < len(m.order); i++ {
		s, ok := m.items[m.order[i]]
		if !ok || !prefix.Matches(&s) {
			continue
		}
		if len(page.Items) == limit {
			page.NextCursor = strconv.Itoa(i)
			break
		}
		page.Items = append(page.Items, s)
	}
	return page, nil
}

func (m *mockRepo) get(id string) models.Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type mockStats struct {
	mu     sync.Mutex
	deltas []suggestionSvc.StatsDelta
	err    error
}

func (m *mockStats) Record(_ context.Context, _ string, deltas []suggestionSvc.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, deltas...)
	return m.err
}

var (
	v1 = docsystem.Version{Major: 1, Minor: 0}
	v2 = docsystem.Version{Major: 1, Minor: 1}
)

func pendingSuggestion(id, text, before, after string) models.Suggestion {
	return models.Suggestion{
		ID:                       id,
		TenantID:                 "tenant-1",
		DocumentID:               "doc-1",
		ContentVersionAtCreation: v1,
		StartOffset:              0,
		EndOffset:                len([]rune(text)),
		TextToReplace:            text,
		ContextBefore:            before,
		ContextAfter:             after,
		Priority:                 models.PriorityMedium,
		Type:                     models.TypeGrammar,
		Status:                   models.StatusPending,
	}
}

func newTestRevalidator(repo suggestionRepo.SuggestionRepository, stats suggestionSvc.StatsSink) *Revalidator {
	e := config.DefaultEngine()
	e.Revalidation.ScanPageSize = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRevalidator(repo, stats, e, logger).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	})
}

func TestWithClock_LeavesOriginalUntouched(t *testing.T) {
	base := newTestRevalidator(newMockRepo(), nil)
	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	shifted := base.WithClock(func() time.Time { return later })

	if shifted == base {
		t.Fatal("expected a distinct revalidator")
	}
	if got := shifted.now(); !got.Equal(later) {
		t.Errorf("copy clock = %v, want %v", got, later)
	}
	if got := base.now(); !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("original clock changed to %v", got)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		s           models.Suggestion
		body        string
		publish     bool
		wantOutcome Outcome
		wantReason  string
	}{
		{
			name:        "anchor and context intact",
			s:           pendingSuggestion("a", "teh", "I saw ", " cat."),
			body:        "Yesterday I saw teh cat.",
			wantOutcome: OutcomeMigrate,
		},
		{
			name:        "anchor gone",
			s:           pendingSuggestion("a", "teh", "I saw ", " cat."),
			body:        "Yesterday I saw the cat.",
			wantOutcome: OutcomeSkip,
			wantReason:  models.ReasonAnchorMissing,
		},
		{
			name:        "context changed around surviving anchor",
			s:           pendingSuggestion("a", "teh", "I saw ", " cat."),
			body:        "I saw teh dog. Then teh cat.",
			wantOutcome: OutcomeSkip,
			wantReason:  models.ReasonContextMismatch,
		},
		{
			name:        "context trimmed before matching",
			s:           pendingSuggestion("a", "teh", "  ", " cat  "),
			body:        "teh cat",
			wantOutcome: OutcomeMigrate,
		},
		{
			name:        "no context recorded",
			s:           pendingSuggestion("a", "teh", "", ""),
			body:        "teh",
			wantOutcome: OutcomeMigrate,
		},
		{
			name:        "publish rejects valid anchor",
			s:           pendingSuggestion("a", "teh", "", ""),
			body:        "teh",
			publish:     true,
			wantOutcome: OutcomeReject,
			wantReason:  models.ReasonPublished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, reason := Check(&tt.s, tt.body, tt.publish)
			if outcome != tt.wantOutcome {
				t.Errorf("expected outcome %d, got %d", tt.wantOutcome, outcome)
			}
			if reason != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, reason)
			}
		})
	}
}

func TestRevalidate_AnchorGoneSkips(t *testing.T) {
	repo := newMockRepo(pendingSuggestion("s1", "recieve", "We ", " mail."))
	stats := &mockStats{}
	r := newTestRevalidator(repo, stats)

	report, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID:   "tenant-1",
		DocumentID: "doc-1",
		NewBody:    "We receive mail.",
		NewVersion: v2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 1 || report.Migrated != 0 {
		t.Errorf("unexpected report %+v", report)
	}

	got := repo.get("s1")
	if got.Status != models.StatusSkipped {
		t.Errorf("expected skipped, got %s", got.Status)
	}
	if got.StatusReason != models.ReasonAnchorMissing {
		t.Errorf("expected reason %s, got %s", models.ReasonAnchorMissing, got.StatusReason)
	}
	if got.ContentVersionAtCreation != v1 {
		t.Errorf("skipped suggestion should keep its version, got %s", got.ContentVersionAtCreation)
	}

	// Skipped suggestions are excluded from the next pass.
	report, err = r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: "We recieve mail.", NewVersion: v2.BumpMinor(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scanned != 0 {
		t.Errorf("expected skipped suggestion to be excluded, scanned %d", report.Scanned)
	}

	if len(stats.deltas) != 2 {
		t.Fatalf("expected one transition worth of deltas, got %+v", stats.deltas)
	}
	if stats.deltas[0].Status != models.StatusPending || stats.deltas[0].Delta != -1 {
		t.Errorf("unexpected first delta %+v", stats.deltas[0])
	}
	if stats.deltas[1].Status != models.StatusSkipped || stats.deltas[1].Delta != 1 {
		t.Errorf("unexpected second delta %+v", stats.deltas[1])
	}
}

func TestRevalidate_SkippedExcludedFromConflictResolution(t *testing.T) {
	stale := pendingSuggestion("stale", "colour", "The ", " of")
	stale.StartOffset, stale.EndOffset = 4, 10
	repo := newMockRepo(stale)
	r := newTestRevalidator(repo, nil)

	newBody := "The color of money."
	if _, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: newBody, NewVersion: v2,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := models.StatusPending
	var live []models.Suggestion
	_ = suggestionRepo.ScanAll(context.Background(), repo, suggestionRepo.Prefix{
		TenantID: "tenant-1", DocumentID: "doc-1", Status: &pending,
	}, 10, func(s *models.Suggestion) error {
		live = append(live, *s)
		return nil
	})

	d, err := conflict.NewDetector(config.DefaultEngine())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if got := d.Process(live, newBody); len(got) != 0 {
		t.Errorf("expected no display suggestions, got %d", len(got))
	}
}

func TestRevalidate_StillPresentMigrates(t *testing.T) {
	repo := newMockRepo(
		pendingSuggestion("s1", "alot", "is ", " of"),
		pendingSuggestion("s2", "irregardless", "", ""),
		pendingSuggestion("s3", "its", "", ""),
	)
	r := newTestRevalidator(repo, nil)

	report, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID:   "tenant-1",
		DocumentID: "doc-1",
		NewBody:    "This is alot of fun, irregardless of its cost.",
		NewVersion: v2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scanned != 3 || report.Migrated != 3 {
		t.Errorf("unexpected report %+v", report)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		got := repo.get(id)
		if got.Status != models.StatusPending {
			t.Errorf("%s: expected pending, got %s", id, got.Status)
		}
		if got.ContentVersionAtCreation != v2 {
			t.Errorf("%s: expected version %s, got %s", id, v2, got.ContentVersionAtCreation)
		}
		if got.StartOffset != 0 {
			t.Errorf("%s: offsets must not be re-resolved", id)
		}
	}
	if repo.scanCalls < 2 {
		t.Errorf("expected paginated scan, got %d calls", repo.scanCalls)
	}
}

func TestRevalidate_PublishRejectsAllPending(t *testing.T) {
	accepted := pendingSuggestion("done", "x", "", "")
	accepted.Status = models.StatusAccepted

	repo := newMockRepo(
		pendingSuggestion("valid", "hello", "", ""),
		pendingSuggestion("gone", "missing text", "", ""),
		accepted,
	)
	stats := &mockStats{}
	r := newTestRevalidator(repo, stats)

	report, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID:          "tenant-1",
		DocumentID:        "doc-1",
		NewBody:           "hello world",
		NewVersion:        docsystem.Version{Major: 2, Minor: 0},
		IsTerminalPublish: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Rejected != 2 || report.Scanned != 2 {
		t.Errorf("unexpected report %+v", report)
	}
	for _, id := range []string{"valid", "gone"} {
		got := repo.get(id)
		if got.Status != models.StatusRejected {
			t.Errorf("%s: expected rejected, got %s", id, got.Status)
		}
		if got.StatusReason != models.ReasonPublished {
			t.Errorf("%s: expected reason %s, got %s", id, models.ReasonPublished, got.StatusReason)
		}
	}
	if got := repo.get("done"); got.Status != models.StatusAccepted {
		t.Errorf("accepted suggestion must not change, got %s", got.Status)
	}
	if len(stats.deltas) != 4 {
		t.Errorf("expected 4 deltas, got %d", len(stats.deltas))
	}
}

func TestRevalidate_StoreFailureDoesNotStopPass(t *testing.T) {
	repo := newMockRepo(
		pendingSuggestion("s1", "one", "", ""),
		pendingSuggestion("s2", "two", "", ""),
		pendingSuggestion("s3", "three", "", ""),
	)
	repo.failUpdate["s2"] = true
	stats := &mockStats{err: errors.New("redis down")}
	r := newTestRevalidator(repo, stats)

	report, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: "one three", NewVersion: v2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 || report.Migrated != 2 {
		t.Errorf("unexpected report %+v", report)
	}
	if got := repo.get("s3"); got.ContentVersionAtCreation != v2 {
		t.Error("suggestion after a failed one should still be processed")
	}
}

func TestRevalidate_StatsFailureKeepsTransition(t *testing.T) {
	repo := newMockRepo(pendingSuggestion("s1", "gone", "", ""))
	r := newTestRevalidator(repo, &mockStats{err: errors.New("stats unavailable")})

	report, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: "nothing here", NewVersion: v2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if got := repo.get("s1"); got.Status != models.StatusSkipped {
		t.Errorf("expected skipped despite stats failure, got %s", got.Status)
	}
}

func TestRevalidate_ScanFailure(t *testing.T) {
	repo := newMockRepo()
	repo.scanErr = errors.New("connection refused")
	r := newTestRevalidator(repo, nil)

	_, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: "x", NewVersion: v2,
	})
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}

func TestRevalidate_OtherDocumentsUntouched(t *testing.T) {
	other := pendingSuggestion("other", "gone", "", "")
	other.DocumentID = "doc-2"
	repo := newMockRepo(other)
	r := newTestRevalidator(repo, nil)

	if _, err := r.Revalidate(context.Background(), &suggestionSvc.RevalidateRequest{
		TenantID: "tenant-1", DocumentID: "doc-1", NewBody: "", NewVersion: v2, IsTerminalPublish: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.get("other"); got.Status != models.StatusPending {
		t.Errorf("expected other document's suggestion untouched, got %s", got.Status)
	}
}
