package mirror

import (
	"errors"
	"sync"
	"testing"
	"time"

	models "redline/internal/domain/models/suggestion"
)

func display(id string, typ models.Type, status models.Status) models.DisplaySuggestion {
	return models.DisplaySuggestion{
		Suggestion: models.Suggestion{ID: id, Type: typ, Status: status},
		IsValid:    true,
		IsVisible:  true,
	}
}

func loaded(opts ...Option) *Mirror {
	m := New(append([]Option{WithWindow(0)}, opts...)...)
	m.Load([]models.DisplaySuggestion{
		display("a", models.TypeGrammar, models.StatusPending),
		display("b", models.TypeGrammar, models.StatusPending),
		display("c", models.TypeSpelling, models.StatusPending),
		display("d", models.TypeFact, models.StatusAccepted),
	})
	return m
}

func TestMirror_StatusIsExclusive(t *testing.T) {
	m := loaded()

	_ = m.Accept("a")
	m.Flush()
	_ = m.Reject("a")
	m.Flush()

	if st, _ := m.Status("a"); st != models.StatusRejected {
		t.Fatalf("expected rejected, got %s", st)
	}
	for _, status := range models.AllStatuses {
		ids := m.IDs(status)
		for _, id := range ids {
			if id == "a" && status != models.StatusRejected {
				t.Errorf("a also listed under %s", status)
			}
		}
	}
	if got := m.IDs(models.StatusAccepted); len(got) != 1 || got[0] != "d" {
		t.Errorf("expected only d accepted, got %v", got)
	}
}

func TestMirror_BatchCoalesces(t *testing.T) {
	m := loaded()

	var mu sync.Mutex
	var updates []Update
	m.Subscribe(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	_ = m.Accept("a")
	_ = m.Reject("b")
	_ = m.Delete("c")
	_ = m.Reject("a") // last change for a wins

	if m.Pending() != 4 {
		t.Fatalf("expected 4 queued changes, got %d", m.Pending())
	}
	if st, _ := m.Status("a"); st != models.StatusPending {
		t.Errorf("queued changes must not apply before commit, got %s", st)
	}

	changes := m.Flush()
	if len(changes) != 3 {
		t.Fatalf("expected 3 committed changes, got %+v", changes)
	}
	if changes[0].ID != "a" || changes[0].To != models.StatusRejected || changes[0].From != models.StatusPending {
		t.Errorf("unexpected first change %+v", changes[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 || len(updates[0].Changes) != 3 {
		t.Errorf("expected one notification with 3 changes, got %+v", updates)
	}
}

func TestMirror_NoopChangesDropped(t *testing.T) {
	m := loaded()
	notified := 0
	m.Subscribe(func(Update) { notified++ })

	_ = m.Accept("d") // already accepted
	if changes := m.Flush(); changes != nil {
		t.Errorf("expected no changes, got %+v", changes)
	}
	if notified != 0 {
		t.Errorf("expected no notification, got %d", notified)
	}
}

func TestMirror_UnknownSuggestion(t *testing.T) {
	m := loaded()
	if err := m.Accept("zzz"); !errors.Is(err, ErrUnknownSuggestion) {
		t.Errorf("expected ErrUnknownSuggestion, got %v", err)
	}
}

func TestMirror_DebounceCommits(t *testing.T) {
	m := New(WithWindow(10 * time.Millisecond))
	defer m.Close()
	m.Load([]models.DisplaySuggestion{
		display("a", models.TypeLLM, models.StatusPending),
		display("b", models.TypeLLM, models.StatusPending),
	})

	done := make(chan Update, 4)
	m.Subscribe(func(u Update) {
		if !u.Reloaded {
			done <- u
		}
	})

	_ = m.Accept("a")
	_ = m.Accept("b")

	select {
	case u := <-done:
		if len(u.Changes) != 2 {
			t.Errorf("expected both changes in one commit, got %+v", u.Changes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced commit never happened")
	}
	if m.Pending() != 0 {
		t.Errorf("expected empty queue, got %d", m.Pending())
	}
}

func TestMirror_StatsMemoized(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := loaded(WithClock(func() time.Time { return now }))

	s := m.Stats()
	if s.Active != 3 || s.Accepted != 1 || s.Rejected != 0 || s.Deleted != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.ByType[models.TypeGrammar] != 2 || s.ByType[models.TypeSpelling] != 1 || s.ByType[models.TypeFact] != 0 {
		t.Errorf("unexpected byType %v", s.ByType)
	}

	s.ByType[models.TypeGrammar] = 99
	_ = m.Stats()
	now = now.Add(500 * time.Millisecond)
	again := m.Stats()
	if m.computed != 1 {
		t.Errorf("expected cached stats within TTL, computed %d times", m.computed)
	}
	if again.ByType[models.TypeGrammar] != 2 {
		t.Error("callers must not be able to mutate the cached stats")
	}

	now = now.Add(time.Second)
	_ = m.Stats()
	if m.computed != 2 {
		t.Errorf("expected recompute after TTL, computed %d times", m.computed)
	}

	_ = m.Delete("c")
	m.Flush()
	s = m.Stats()
	if m.computed != 3 || s.Deleted != 1 || s.Active != 2 {
		t.Errorf("commit must invalidate the cache: computed=%d stats=%+v", m.computed, s)
	}
}

func TestMirror_FlushHookAndUnsubscribe(t *testing.T) {
	var forwarded []Change
	m := loaded(WithFlushHook(func(changes []Change) { forwarded = append(forwarded, changes...) }))

	calls := 0
	unsubscribe := m.Subscribe(func(Update) { calls++ })

	_ = m.Accept("a")
	m.Flush()
	unsubscribe()
	unsubscribe()
	_ = m.Accept("b")
	m.Flush()

	if calls != 1 {
		t.Errorf("expected 1 notification before unsubscribe, got %d", calls)
	}
	if len(forwarded) != 2 || forwarded[1].ID != "b" || forwarded[1].Type != models.TypeGrammar {
		t.Errorf("unexpected forwarded changes %+v", forwarded)
	}
}

func TestMirror_LoadReplacesAndDropsStaleQueue(t *testing.T) {
	m := loaded()
	_ = m.Accept("a")

	m.Load([]models.DisplaySuggestion{display("x", models.TypeBrand, models.StatusPending)})
	if changes := m.Flush(); changes != nil {
		t.Errorf("queued change for a vanished suggestion must be dropped, got %+v", changes)
	}
	if active := m.Active(); len(active) != 1 || active[0].ID != "x" {
		t.Errorf("unexpected active list %+v", active)
	}
}

func TestMirror_StaleTimerDoesNotCutWindowShort(t *testing.T) {
	m := New(WithWindow(time.Hour))
	defer m.Close()
	m.Load([]models.DisplaySuggestion{
		display("a", models.TypeLLM, models.StatusPending),
		display("b", models.TypeLLM, models.StatusPending),
	})

	_ = m.Accept("a")
	m.mu.Lock()
	stale := m.gen
	m.mu.Unlock()

	// A manual flush wins the race against the armed timer.
	if changes := m.Flush(); len(changes) != 1 {
		t.Fatalf("expected a committed, got %+v", changes)
	}
	_ = m.Reject("b")

	// The superseded callback runs late and must not commit b early.
	m.timerFired(stale)
	if m.Pending() != 1 {
		t.Fatalf("stale timer committed the new queue, pending=%d", m.Pending())
	}
	if st, _ := m.Status("b"); st != models.StatusPending {
		t.Errorf("expected b still pending inside its window, got %s", st)
	}

	m.mu.Lock()
	current := m.gen
	m.mu.Unlock()
	m.timerFired(current)
	if st, _ := m.Status("b"); st != models.StatusRejected {
		t.Errorf("expected the current timer to commit b, got %s", st)
	}
}
