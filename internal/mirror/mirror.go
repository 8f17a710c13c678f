// Package mirror keeps a client-side copy of a document's suggestions and
// their user-driven statuses for UI consumption.
//
// Status changes are queued and committed in debounced batches: several
// Accept/Reject/Delete calls inside one window produce a single state update
// and a single subscriber notification.
package mirror

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	models "redline/internal/domain/models/suggestion"
)

const (
	DefaultWindow   = 50 * time.Millisecond
	DefaultStatsTTL = time.Second
)

// ErrUnknownSuggestion is returned when a status change names a suggestion
// the mirror does not hold.
var ErrUnknownSuggestion = errors.New("unknown suggestion")

// Change is one committed status change.
type Change struct {
	ID   string        `json:"id"`
	Type models.Type   `json:"type"`
	From models.Status `json:"from"`
	To   models.Status `json:"to"`
}

// Update is delivered to subscribers after each commit.
type Update struct {
	Changes  []Change
	Reloaded bool // true when Load replaced the contents
}

// Stats are aggregate counts derived from the mirror. ByType counts active
// (pending) suggestions only.
type Stats struct {
	Active   int                 `json:"active"`
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Deleted  int                 `json:"deleted"`
	ByType   map[models.Type]int `json:"byType"`
}

// FlushHook receives every committed batch, e.g. to forward it to the server.
type FlushHook func(changes []Change)

// Option customises a Mirror.
type Option func(*Mirror)

// WithWindow sets the debounce window. A zero window commits on Flush only.
func WithWindow(d time.Duration) Option {
	return func(m *Mirror) { m.window = d }
}

// WithStatsTTL sets how long computed stats are reused.
func WithStatsTTL(d time.Duration) Option {
	return func(m *Mirror) { m.statsTTL = d }
}

// WithClock overrides the time source used for the stats cache.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) { m.now = now }
}

// WithFlushHook registers a hook called after every non-empty commit.
func WithFlushHook(hook FlushHook) Option {
	return func(m *Mirror) { m.onFlush = hook }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) { m.logger = logger }
}

type op struct {
	id string
	to models.Status
}

// Mirror is safe for concurrent use.
type Mirror struct {
	mu       sync.Mutex
	order    []string
	items    map[string]*models.DisplaySuggestion
	byStatus map[models.Status]map[string]struct{}

	queue []op
	timer *time.Timer
	gen   uint64 // bumped whenever the pending timer is replaced or cancelled

	stats     *Stats
	statsAt   time.Time
	computed  int
	statsTTL  time.Duration
	window    time.Duration
	now       func() time.Time
	onFlush   FlushHook
	logger    *slog.Logger
	nextSubID int
	subs      map[int]func(Update)
}

// New creates an empty mirror.
func New(opts ...Option) *Mirror {
	m := &Mirror{
		items:    make(map[string]*models.DisplaySuggestion),
		byStatus: make(map[models.Status]map[string]struct{}),
		statsTTL: DefaultStatsTTL,
		window:   DefaultWindow,
		now:      time.Now,
		logger:   slog.Default(),
		subs:     make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the mirror's contents with a display list. Queued changes
// for suggestions that are no longer present are dropped at commit time.
func (m *Mirror) Load(items []models.DisplaySuggestion) {
	m.mu.Lock()
	m.order = m.order[:0]
	m.items = make(map[string]*models.DisplaySuggestion, len(items))
	m.byStatus = make(map[models.Status]map[string]struct{})
	for i := range items {
		item := items[i]
		if _, dup := m.items[item.ID]; dup {
			continue
		}
		m.order = append(m.order, item.ID)
		m.items[item.ID] = &item
		m.index(item.ID, item.Status)
	}
	m.stats = nil
	subs := m.subscribers()
	m.mu.Unlock()

	notify(subs, Update{Reloaded: true})
}

// Accept queues a transition to accepted.
func (m *Mirror) Accept(id string) error { return m.enqueue(id, models.StatusAccepted) }

// Reject queues a transition to rejected.
func (m *Mirror) Reject(id string) error { return m.enqueue(id, models.StatusRejected) }

// Delete queues a transition to deleted.
func (m *Mirror) Delete(id string) error { return m.enqueue(id, models.StatusDeleted) }

func (m *Mirror) enqueue(id string, to models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrUnknownSuggestion
	}
	m.queue = append(m.queue, op{id: id, to: to})
	if m.window > 0 && m.timer == nil {
		m.gen++
		gen := m.gen
		m.timer = time.AfterFunc(m.window, func() { m.timerFired(gen) })
	}
	return nil
}

// Pending reports how many status changes are queued but not yet committed.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Flush commits queued changes immediately and returns them. The last change
// queued for a suggestion wins; changes that leave a status unchanged are
// dropped.
func (m *Mirror) Flush() []Change {
	m.mu.Lock()
	return m.commitLocked()
}

// timerFired commits on behalf of the debounce timer armed at generation
// gen. A callback that lost the race against Flush or Close finds a newer
// generation and does nothing.
func (m *Mirror) timerFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.commitLocked()
}

// commitLocked applies the queue. It is entered with m.mu held and releases it.
func (m *Mirror) commitLocked() []Change {
	m.stopTimerLocked()
	queue := m.queue
	m.queue = nil

	last := make(map[string]models.Status, len(queue))
	var ids []string
	for _, o := range queue {
		if _, seen := last[o.id]; !seen {
			ids = append(ids, o.id)
		}
		last[o.id] = o.to
	}

	var changes []Change
	for _, id := range ids {
		item, ok := m.items[id]
		if !ok {
			continue
		}
		to := last[id]
		if item.Status == to {
			continue
		}
		changes = append(changes, Change{ID: id, Type: item.Type, From: item.Status, To: to})
		m.unindex(id, item.Status)
		item.Status = to
		m.index(id, to)
	}

	if len(changes) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.stats = nil
	subs := m.subscribers()
	hook := m.onFlush
	m.mu.Unlock()

	m.logger.Debug("mirror batch committed", "changes", len(changes))
	notify(subs, Update{Changes: changes})
	if hook != nil {
		hook(changes)
	}
	return changes
}

// Subscribe registers fn for commit notifications and returns a function
// that removes it.
func (m *Mirror) Subscribe(fn func(Update)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Status returns the committed status of a suggestion.
func (m *Mirror) Status(id string) (models.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return "", false
	}
	return item.Status, true
}

// IDs returns the suggestions currently in status, in display order.
func (m *Mirror) IDs(status models.Status) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byStatus[status]
	ids := make([]string, 0, len(set))
	for _, id := range m.order {
		if _, ok := set[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Active returns the pending suggestions in display order.
func (m *Mirror) Active() []models.DisplaySuggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DisplaySuggestion, 0, len(m.byStatus[models.StatusPending]))
	for _, id := range m.order {
		if item := m.items[id]; item.Status == models.StatusPending {
			out = append(out, *item)
		}
	}
	return out
}

// Stats returns aggregate counts, reusing the last result while it is
// younger than the stats TTL and nothing was committed since.
func (m *Mirror) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.stats != nil && now.Sub(m.statsAt) < m.statsTTL {
		return m.stats.clone()
	}

	s := &Stats{
		Active:   len(m.byStatus[models.StatusPending]),
		Accepted: len(m.byStatus[models.StatusAccepted]),
		Rejected: len(m.byStatus[models.StatusRejected]),
		Deleted:  len(m.byStatus[models.StatusDeleted]),
		ByType:   make(map[models.Type]int),
	}
	for id := range m.byStatus[models.StatusPending] {
		s.ByType[m.items[id].Type]++
	}
	m.stats = s
	m.statsAt = now
	m.computed++
	return s.clone()
}

// Close stops the debounce timer without committing queued changes.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *Mirror) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (s *Stats) clone() Stats {
	out := *s
	out.ByType = make(map[models.Type]int, len(s.ByType))
	for t, n := range s.ByType {
		out.ByType[t] = n
	}
	return out
}

func (m *Mirror) index(id string, status models.Status) {
	set := m.byStatus[status]
	if set == nil {
		set = make(map[string]struct{})
		m.byStatus[status] = set
	}
	set[id] = struct{}{}
}

func (m *Mirror) unindex(id string, status models.Status) {
	delete(m.byStatus[status], id)
}

// subscribers snapshots the subscriber list; callers hold m.mu.
func (m *Mirror) subscribers() []func(Update) {
	subs := make([]func(Update), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Update), u Update) {
	for _, fn := range subs {
		fn(u)
	}
}
