// Package optimistic creates tasks optimistically: a placeholder shows up in every
// matching list view at once, and the create request is retried in the background
// until the server confirms it, retries run out, or the user cancels.
package optimistic

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskboard/internal/model"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

const (
	DefaultMaxRetries     = 4
	DefaultBaseDelay      = 2 * time.Second
	DefaultAttemptTimeout = 15 * time.Second
)

// Creator sends a create request to the server.
// Repeated calls with the same ClientRequestID must not create duplicates.
type Creator interface {
	CreateTask(ctx context.Context, req model.CreateTaskRequest) (model.Task, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, req model.CreateTaskRequest) (model.Task, error)

func (f CreatorFunc) CreateTask(ctx context.Context, req model.CreateTaskRequest) (model.Task, error) {
	return f(ctx, req)
}

type Options struct {
	// MaxRetries is the number of failed attempts after which an entry is marked as failed.
	MaxRetries int
	// BaseDelay is the wait after the first failure; it doubles after every further failure.
	BaseDelay time.Duration
	// AttemptTimeout bounds a single create request.
	AttemptTimeout time.Duration

	// OnConfirmed, if set, receives the server record of every confirmed entry before
	// Wait callers are woken. It runs with the manager's lock held and must not call
	// back into the Manager.
	OnConfirmed func(localID string, rec model.Task)

	Clock   clock.WithDelayedExecution
	Logger  logr.Logger
	Metrics *Metrics
}

// Manager owns the retry queue for one application session. It is safe for
// concurrent use; call Close on shutdown.
type Manager struct {
	creator Creator
	cache   Cache
	clock   clock.WithDelayedExecution
	log     logr.Logger
	metrics *Metrics

	onConfirmed func(localID string, rec model.Task)

	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	queue   map[string]*pending // idempotency token -> entry
	byLocal map[string]string   // local id -> idempotency token
	changed chan struct{}
	closed  bool
}

// pending is one retry queue entry.
type pending struct {
	token    string
	localID  string
	req      model.CreateTaskRequest
	position float64

	attempts int
	state    model.SyncState

	// epoch fences attempts: a result is applied only if the epoch it started
	// under is still current. Retry, Cancel and Close bump it.
	epoch         uint64
	timer         clock.Timer
	cancelAttempt context.CancelFunc
}

func NewManager(creator Creator, cache Cache, opts Options) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		creator:        creator,
		cache:          cache,
		clock:          opts.Clock,
		log:            opts.Logger.WithName("optimistic"),
		metrics:        opts.Metrics,
		onConfirmed:    opts.OnConfirmed,
		maxRetries:     opts.MaxRetries,
		baseDelay:      opts.BaseDelay,
		attemptTimeout: opts.AttemptTimeout,
		ctx:            ctx,
		stop:           stop,
		queue:          map[string]*pending{},
		byLocal:        map[string]string{},
		changed:        make(chan struct{}),
	}
}

// QuickAdd shows a new task titled title in bucket right away and starts creating it
// on the server. It returns the placeholder's local id.
//
// The placeholder is in the cache when QuickAdd returns. Server errors never surface
// here; they show up as the entry's sync state.
func (m *Manager) QuickAdd(bucket, title string, active model.TaskFilter, extra Fields) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrBlankTitle
	}
	e, err := NewEntry(bucket, title, withFilterDefaults(extra, active), m.clock.Now())
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	pos := insertEntry(m.cache, active, e.Task)
	p := &pending{
		token:    e.Token,
		localID:  e.LocalID,
		req:      e.Request,
		position: pos,
		state:    model.SyncSyncing,
	}
	m.queue[p.token] = p
	m.byLocal[p.localID] = p.token
	m.metrics.addPending(1)
	m.broadcastLocked()

	m.log.V(1).Info("queued task", "localID", p.localID, "token", p.token, "status", p.req.Status, "position", pos)
	m.startLocked(p)
	return e.LocalID, nil
}

// Retry restarts a failed (or backing-off) entry: the attempt count goes back to zero
// and a new attempt starts immediately with the same idempotency token.
// It reports false when localID is not pending.
func (m *Manager) Retry(localID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	token, ok := m.byLocal[localID]
	if !ok {
		return false
	}
	p := m.queue[token]
	m.fenceLocked(p)
	p.attempts = 0
	p.state = model.SyncSyncing
	markEntry(m.cache, localID, model.SyncSyncing)
	m.broadcastLocked()

	m.log.Info("retrying task creation", "localID", localID, "token", token)
	m.startLocked(p)
	return true
}

// Cancel forgets the entry and removes its placeholder from every view.
// It is safe in any state and a no-op for unknown ids. It reports whether an entry
// was pending.
func (m *Manager) Cancel(localID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.byLocal[localID]
	if ok {
		p := m.queue[token]
		m.fenceLocked(p)
		delete(m.queue, token)
		delete(m.byLocal, localID)
		m.metrics.addPending(-1)
		m.metrics.incCanceled()
		m.log.V(1).Info("canceled task", "localID", localID, "token", token)
	}
	removeEntry(m.cache, localID)
	m.broadcastLocked()
	return ok
}

// SyncState returns the state of localID. Unknown ids (confirmed or never created)
// report SyncOK.
func (m *Manager) SyncState(localID string) model.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(localID)
}

func (m *Manager) IsSyncing(localID string) bool { return m.SyncState(localID) == model.SyncSyncing }
func (m *Manager) IsError(localID string) bool   { return m.SyncState(localID) == model.SyncError }

// Attempts returns the failed attempt count of a pending entry (0 if unknown).
func (m *Manager) Attempts(localID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.lookupLocked(localID); p != nil {
		return p.attempts
	}
	return 0
}

// Token returns the idempotency token of a pending entry.
func (m *Manager) Token(localID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byLocal[localID]
	return t, ok
}

// Pending returns the number of entries the server has not confirmed yet.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Wait blocks until localID is no longer syncing and returns its state.
func (m *Manager) Wait(ctx context.Context, localID string) (model.SyncState, error) {
	for {
		m.mu.Lock()
		st := m.stateLocked(localID)
		ch := m.changed
		closed := m.closed
		m.mu.Unlock()

		if st != model.SyncSyncing {
			return st, nil
		}
		if closed {
			return st, ErrClosed
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// Close stops all timers and in-flight attempts and waits for attempt goroutines.
// Entries keep their last state; no further attempts run.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, p := range m.queue {
		m.fenceLocked(p)
	}
	m.stop()
	m.broadcastLocked()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) stateLocked(localID string) model.SyncState {
	if p := m.lookupLocked(localID); p != nil {
		return p.state
	}
	return model.SyncOK
}

func (m *Manager) lookupLocked(localID string) *pending {
	token, ok := m.byLocal[localID]
	if !ok {
		return nil
	}
	return m.queue[token]
}

// broadcastLocked wakes every Wait caller.
func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
