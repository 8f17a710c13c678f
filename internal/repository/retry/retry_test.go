package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"redline/internal/config"
	"redline/internal/domain"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
)

var errFlaky = fmt.Errorf("write: %w", errors.Join(domain.ErrStore, errors.New("connection reset")))

func TestExponential(t *testing.T) {
	backoff := Exponential(10*time.Millisecond, 70*time.Millisecond, 2)

	want := []time.Duration{10, 20, 40, 70, 70}
	for attempt, w := range want {
		if got := backoff(attempt); got != w*time.Millisecond {
			t.Errorf("attempt %d: expected %s, got %s", attempt, w*time.Millisecond, got)
		}
	}
	if got := backoff(-3); got != 10*time.Millisecond {
		t.Errorf("negative attempt: expected initial delay, got %s", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.DefaultEngine().StoreRetry)
	if p.MaxAttempts != 3 || p.BatchFailureThreshold != 2 {
		t.Errorf("unexpected policy %+v", p)
	}
	if got := p.Backoff(1); got != 100*time.Millisecond {
		t.Errorf("expected 100ms second delay, got %s", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store failure", errFlaky, true},
		{"not found", domain.ErrNotFound, false},
		{"conflict", &domain.ConflictError{Message: "exists"}, false},
		{"canceled store call", errors.Join(domain.ErrStore, context.Canceled), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicyDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", 0, errFlaky, 1, false},
		{"recovers after transient failures", 2, errFlaky, 3, false},
		{"gives up after max attempts", 5, errFlaky, 3, true},
		{"does not retry permanent errors", 5, domain.ErrNotFound, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{MaxAttempts: 3}
			calls := 0
			err := p.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPolicyDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, Backoff: func(int) time.Duration { return time.Hour }}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errFlaky
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

// flakyRepo fails writes for configured IDs a set number of times.
type flakyRepo struct {
	mu           sync.Mutex
	created      map[string]bool
	createFails  map[string]int
	batchFails   int
	batchCalls   int
	createCalls  int
	batchSupport bool
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{created: map[string]bool{}, createFails: map[string]int{}}
}

func (f *flakyRepo) Create(_ context.Context, s *models.Suggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createFails[s.ID] > 0 {
		f.createFails[s.ID]--
		return errFlaky
	}
	if f.created[s.ID] {
		return &domain.ConflictError{Message: "exists", ResourceID: s.ID}
	}
	f.created[s.ID] = true
	return nil
}

func (f *flakyRepo) Get(context.Context, suggestionRepo.Key) (*models.Suggestion, error) {
	return nil, domain.ErrNotFound
}

func (f *flakyRepo) Update(context.Context, *models.Suggestion) error { return nil }

func (f *flakyRepo) Delete(context.Context, suggestionRepo.Key) error { return nil }

func (f *flakyRepo) Scan(context.Context, suggestionRepo.Prefix, string, int) (*suggestionRepo.Page, error) {
	return &suggestionRepo.Page{}, nil
}

// batchingRepo adds a batch path that stores the first item and fails the rest.
type batchingRepo struct {
	*flakyRepo
}

func (b *batchingRepo) CreateBatch(_ context.Context, items []*models.Suggestion) ([]*models.Suggestion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchCalls++
	if b.batchFails == 0 {
		for _, s := range items {
			b.created[s.ID] = true
		}
		return nil, nil
	}
	b.batchFails--
	b.created[items[0].ID] = true
	return items[1:], errFlaky
}

func items(ids ...string) []*models.Suggestion {
	out := make([]*models.Suggestion, len(ids))
	for i, id := range ids {
		out[i] = &models.Suggestion{ID: id}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreCreate_RetriesTransientFailure(t *testing.T) {
	repo := newFlakyRepo()
	repo.createFails["s1"] = 2
	store := NewStore(repo, Policy{MaxAttempts: 3}, testLogger())

	if err := store.Create(context.Background(), &models.Suggestion{ID: "s1"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if repo.createCalls != 3 {
		t.Errorf("expected 3 create calls, got %d", repo.createCalls)
	}
}

func TestStoreCreateBatch_WithoutBatchSupport(t *testing.T) {
	repo := newFlakyRepo()
	repo.createFails["b"] = 10
	store := NewStore(repo, Policy{MaxAttempts: 2, BatchFailureThreshold: 2}, testLogger())

	failed, err := store.CreateBatch(context.Background(), items("a", "b", "c"))
	if err == nil {
		t.Fatal("expected error for permanently failing item")
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Errorf("expected only b to fail, got %v", failed)
	}
	if !repo.created["a"] || !repo.created["c"] {
		t.Error("siblings of a failing item should be written")
	}
}

func TestStoreCreateBatch_BatchSucceedsOnRetry(t *testing.T) {
	repo := &batchingRepo{newFlakyRepo()}
	repo.batchFails = 1
	store := NewStore(repo, Policy{MaxAttempts: 3, BatchFailureThreshold: 2}, testLogger())

	failed, err := store.CreateBatch(context.Background(), items("a", "b", "c"))
	if err != nil || len(failed) != 0 {
		t.Fatalf("expected success, got failed=%v err=%v", failed, err)
	}
	if repo.batchCalls != 2 {
		t.Errorf("expected 2 batch calls, got %d", repo.batchCalls)
	}
	if repo.createCalls != 0 {
		t.Errorf("expected no individual writes, got %d", repo.createCalls)
	}
}

func TestStoreCreateBatch_FallsBackToIndividualWrites(t *testing.T) {
	repo := &batchingRepo{newFlakyRepo()}
	repo.batchFails = 10
	repo.createFails["d"] = 1
	store := NewStore(repo, Policy{MaxAttempts: 3, BatchFailureThreshold: 2}, testLogger())

	failed, err := store.CreateBatch(context.Background(), items("a", "b", "c", "d"))
	if err != nil || len(failed) != 0 {
		t.Fatalf("expected fallback to write everything, got failed=%v err=%v", failed, err)
	}
	if repo.batchCalls != 2 {
		t.Errorf("expected threshold of 2 batch calls, got %d", repo.batchCalls)
	}
	// a and b landed through the batches; c and d are written individually,
	// d needing one retry.
	if repo.createCalls != 3 {
		t.Errorf("expected 3 individual create calls, got %d", repo.createCalls)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if !repo.created[id] {
			t.Errorf("expected %s written", id)
		}
	}
}
