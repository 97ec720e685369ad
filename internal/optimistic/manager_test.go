package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskboard/internal/listcache"
	"taskboard/internal/logging"
	"taskboard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

var errUnavailable = errors.New("server unavailable")

// fakeCreator fails the first failFirst calls (all calls when failFirst < 0) and
// succeeds afterwards. When gate is set, calls block until it is closed.
type fakeCreator struct {
	mu        sync.Mutex
	calls     []model.CreateTaskRequest
	failFirst int
	gate      chan struct{}
}

func (f *fakeCreator) CreateTask(ctx context.Context, req model.CreateTaskRequest) (model.Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	failFirst := f.failFirst
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Task{}, ctx.Err()
		}
	}
	if failFirst < 0 || n <= failFirst {
		return model.Task{}, errUnavailable
	}
	return model.Task{
		ID:        fmt.Sprintf("task-%d", n),
		Title:     req.Title,
		Status:    req.Status,
		Tags:      req.Tags,
		SortOrder: -1,
	}, nil
}

func (f *fakeCreator) set(failFirst int, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFirst = failFirst
	f.gate = gate
}

func (f *fakeCreator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCreator) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.ClientRequestID)
	}
	return out
}

type harness struct {
	m     *Manager
	cache *listcache.Store
	clk   *testclock.FakeClock
	cr    *fakeCreator
}

func newHarness(t *testing.T, cr *fakeCreator) *harness {
	t.Helper()
	clk := testclock.NewFakeClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	cache := listcache.New()
	m := NewManager(cr, cache, Options{Clock: clk, Logger: logging.NewTestLogger(t)})
	t.Cleanup(m.Close)
	return &harness{m: m, cache: cache, clk: clk, cr: cr}
}

func (h *harness) view(t *testing.T, f model.TaskFilter) []model.Task {
	t.Helper()
	v, ok := h.cache.Get(listcache.KeyFor(f))
	require.True(t, ok, "view %s not cached", listcache.KeyFor(f))
	return v.Tasks
}

// waitTimer waits until a backoff timer is armed.
func (h *harness) waitTimer(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.clk.HasWaiters, 2*time.Second, time.Millisecond, "expected a pending backoff timer")
}

func (h *harness) waitCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.cr.callCount() >= n }, 2*time.Second, time.Millisecond, "expected %d create calls", n)
}

func (h *harness) wait(t *testing.T, localID string) model.SyncState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.m.Wait(ctx, localID)
	require.NoError(t, err)
	return st
}

var weekOnly = model.TaskFilter{Statuses: []string{"week"}}

func TestQuickAdd_VisibleImmediately(t *testing.T) {
	cr := &fakeCreator{gate: make(chan struct{})}
	h := newHarness(t, cr)
	defer close(cr.gate)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)

	tasks := h.view(t, weekOnly)
	require.Len(t, tasks, 1)
	require.Equal(t, localID, tasks[0].ID)
	require.Equal(t, "Buy milk", tasks[0].Title)
	require.Equal(t, "week", tasks[0].Status)
	require.Equal(t, model.SyncSyncing, tasks[0].Sync.State)
	require.Equal(t, float64(DefaultPosition), tasks[0].SortOrder)
	require.True(t, h.m.IsSyncing(localID))
	require.False(t, h.m.IsError(localID))
}

func TestQuickAdd_BlankTitleCreatesNothing(t *testing.T) {
	h := newHarness(t, &fakeCreator{})

	_, err := h.m.QuickAdd("week", "  \t ", weekOnly, Fields{})
	require.ErrorIs(t, err, ErrBlankTitle)
	require.Zero(t, h.m.Pending())
	require.Empty(t, h.cache.GetAll(nil))
	require.Zero(t, h.cr.callCount())
}

func TestQuickAdd_TokensAreUniquePerEntry(t *testing.T) {
	cr := &fakeCreator{gate: make(chan struct{})}
	h := newHarness(t, cr)
	defer close(cr.gate)

	tokens := map[string]string{}
	for i := 0; i < 50; i++ {
		localID, err := h.m.QuickAdd("backlog", fmt.Sprintf("task %d", i), model.TaskFilter{}, Fields{})
		require.NoError(t, err)
		tok, ok := h.m.Token(localID)
		require.True(t, ok)
		prev, dup := tokens[tok]
		require.False(t, dup, "token %s reused by %s and %s", tok, prev, localID)
		tokens[tok] = localID
	}
	require.Equal(t, 50, h.m.Pending())
}

func TestRetryBound_AlwaysFailingServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	cr := &fakeCreator{failFirst: -1}
	clk := testclock.NewFakeClock(time.Now())
	cache := listcache.New()
	m := NewManager(cr, cache, Options{Clock: clk, Metrics: metrics, Logger: logging.NewTestLogger(t)})
	t.Cleanup(m.Close)
	h := &harness{m: m, cache: cache, clk: clk, cr: cr}

	localID, err := m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)

	// Failures back off 2s, 4s, 8s; the 4th failure is terminal.
	for i, delay := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		h.waitCalls(t, i+1)
		h.waitTimer(t)
		clk.Step(delay - time.Millisecond)
		require.Equal(t, i+1, cr.callCount(), "attempt fired before its backoff elapsed")
		clk.Step(time.Millisecond)
	}

	require.Equal(t, model.SyncError, h.wait(t, localID))
	require.Equal(t, DefaultMaxRetries, m.Attempts(localID))
	require.Equal(t, DefaultMaxRetries, cr.callCount())
	require.False(t, clk.HasWaiters(), "no timer may remain after exhaustion")
	require.True(t, m.IsError(localID))

	tasks := h.view(t, weekOnly)
	require.Len(t, tasks, 1, "failed entry stays visible")
	require.Equal(t, model.SyncError, tasks[0].Sync.State)

	require.Equal(t, float64(DefaultMaxRetries), testutil.ToFloat64(metrics.attempts.WithLabelValues("failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.exhausted))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.pending))
}

func TestRetry_ResetsAttemptsAndReusesToken(t *testing.T) {
	cr := &fakeCreator{failFirst: -1}
	h := newHarness(t, cr)
	h.m.maxRetries = 1

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	require.Equal(t, model.SyncError, h.wait(t, localID))
	require.Equal(t, 1, h.m.Attempts(localID))

	gate := make(chan struct{})
	cr.set(0, gate)
	require.True(t, h.m.Retry(localID))
	require.Equal(t, 0, h.m.Attempts(localID))
	require.Equal(t, model.SyncSyncing, h.m.SyncState(localID))
	require.Equal(t, model.SyncSyncing, h.view(t, weekOnly)[0].Sync.State)

	close(gate)
	require.Equal(t, model.SyncOK, h.wait(t, localID))

	toks := cr.tokens()
	require.Len(t, toks, 2)
	require.Equal(t, toks[0], toks[1], "retry must reuse the idempotency token")
}

func TestRetry_BypassesPendingBackoff(t *testing.T) {
	cr := &fakeCreator{failFirst: 1}
	h := newHarness(t, cr)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	h.waitTimer(t)

	require.True(t, h.m.Retry(localID))
	require.False(t, h.clk.HasWaiters(), "retry must cancel the pending timer")
	require.Equal(t, model.SyncOK, h.wait(t, localID))

	// The old timer is gone; stepping past it must not produce another call.
	h.clk.Step(time.Minute)
	require.Equal(t, 2, cr.callCount())
}

func TestSuccessOnSecondAttempt_ReconcilesInPlace(t *testing.T) {
	cr := &fakeCreator{failFirst: 1}
	h := newHarness(t, cr)
	h.cache.Put(weekOnly, []model.Task{{ID: "task-old", Title: "Old", Status: "week", SortOrder: 2000}})

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	before := h.view(t, weekOnly)
	require.Equal(t, localID, before[0].ID)
	require.Equal(t, float64(1999), before[0].SortOrder)

	h.waitTimer(t)
	h.clk.Step(DefaultBaseDelay)
	require.Equal(t, model.SyncOK, h.wait(t, localID))

	after := h.view(t, weekOnly)
	require.Len(t, after, len(before), "reconciliation must replace, not append")
	require.Equal(t, "task-2", after[0].ID)
	require.Equal(t, float64(1999), after[0].SortOrder, "server sort order is discarded")
	require.Nil(t, after[0].Sync)
	for _, task := range after {
		require.NotEqual(t, localID, task.ID)
	}
	require.Zero(t, h.m.Pending())
	_, ok := h.m.Token(localID)
	require.False(t, ok, "token mapping must be cleared after reconciliation")
}

func TestReconcile_UpdatesEveryView(t *testing.T) {
	h := newHarness(t, &fakeCreator{})
	board := model.TaskFilter{}
	h.cache.Ensure(board)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	require.Equal(t, model.SyncOK, h.wait(t, localID))

	for _, f := range []model.TaskFilter{board, weekOnly} {
		tasks := h.view(t, f)
		require.Len(t, tasks, 1)
		require.Equal(t, "task-1", tasks[0].ID)
	}
}

func TestCancel_DuringBackoff(t *testing.T) {
	cr := &fakeCreator{failFirst: -1}
	h := newHarness(t, cr)
	board := model.TaskFilter{}
	h.cache.Ensure(board)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	h.waitTimer(t)

	require.True(t, h.m.Cancel(localID))
	require.False(t, h.clk.HasWaiters(), "cancel must clear the pending timer")
	require.Empty(t, h.view(t, weekOnly))
	require.Empty(t, h.view(t, board))
	require.Equal(t, model.SyncOK, h.m.SyncState(localID))
	require.Zero(t, h.m.Pending())

	h.clk.Step(time.Minute)
	require.Equal(t, 1, cr.callCount(), "no attempt may run after cancel")

	require.False(t, h.m.Cancel(localID), "second cancel is a no-op")
}

func TestCancel_DuringAttemptDropsLateResult(t *testing.T) {
	gate := make(chan struct{})
	cr := &fakeCreator{gate: gate}
	h := newHarness(t, cr)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	h.waitCalls(t, 1)

	require.True(t, h.m.Cancel(localID))
	close(gate)

	// Close waits for the attempt goroutine, so its result has been handled afterwards.
	h.m.Close()
	require.Empty(t, h.view(t, weekOnly))
	require.Zero(t, h.m.Pending())
}

func TestCancel_AfterFailure(t *testing.T) {
	h := newHarness(t, &fakeCreator{failFirst: -1})
	h.m.maxRetries = 1

	localID, err := h.m.QuickAdd("today", "Call mom", model.TaskFilter{}, Fields{})
	require.NoError(t, err)
	require.Equal(t, model.SyncError, h.wait(t, localID))

	require.True(t, h.m.Cancel(localID))
	require.Empty(t, h.view(t, model.TaskFilter{}))
	require.False(t, h.m.Retry(localID), "retry after cancel is a no-op")
}

func TestFailuresAreIsolatedPerEntry(t *testing.T) {
	var mu sync.Mutex
	cr := CreatorFunc(func(ctx context.Context, req model.CreateTaskRequest) (model.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		if req.Title == "bad" {
			return model.Task{}, errUnavailable
		}
		return model.Task{ID: "task-" + req.Title, Title: req.Title, Status: req.Status}, nil
	})
	clk := testclock.NewFakeClock(time.Now())
	cache := listcache.New()
	m := NewManager(cr, cache, Options{Clock: clk, MaxRetries: 1})
	t.Cleanup(m.Close)

	bad, err := m.QuickAdd("week", "bad", weekOnly, Fields{})
	require.NoError(t, err)
	good, err := m.QuickAdd("week", "good", weekOnly, Fields{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := m.Wait(ctx, bad)
	require.NoError(t, err)
	require.Equal(t, model.SyncError, st)
	st, err = m.Wait(ctx, good)
	require.NoError(t, err)
	require.Equal(t, model.SyncOK, st)

	v, _ := cache.Get(listcache.KeyFor(weekOnly))
	require.Len(t, v.Tasks, 2)
	// "good" was added last, so it sits on top.
	require.Equal(t, "task-good", v.Tasks[0].ID)
	require.Equal(t, bad, v.Tasks[1].ID)
}

func TestQuickAdd_AppliesActiveFilterDefaults(t *testing.T) {
	cr := &fakeCreator{gate: make(chan struct{})}
	h := newHarness(t, cr)
	defer close(cr.gate)

	active := model.TaskFilter{ProjectID: "proj-1"}
	_, err := h.m.QuickAdd("backlog", "Plan trip", active, Fields{})
	require.NoError(t, err)
	h.waitCalls(t, 1)

	require.Len(t, h.view(t, active), 1)
	h.cr.mu.Lock()
	req := h.cr.calls[0]
	h.cr.mu.Unlock()
	require.NotNil(t, req.ProjectID)
	require.Equal(t, "proj-1", *req.ProjectID)
	require.Equal(t, model.InsertTop, req.InsertAt)
}

func TestWait_HonorsContext(t *testing.T) {
	cr := &fakeCreator{gate: make(chan struct{})}
	h := newHarness(t, cr)
	defer close(cr.gate)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	st, err := h.m.Wait(ctx, localID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, model.SyncSyncing, st)
}

func TestClose_StopsTimersAndRejectsNewWork(t *testing.T) {
	h := newHarness(t, &fakeCreator{failFirst: -1})

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	h.waitTimer(t)

	h.m.Close()
	require.False(t, h.clk.HasWaiters())
	require.False(t, h.m.Retry(localID))
	_, err = h.m.QuickAdd("week", "Another", weekOnly, Fields{})
	require.ErrorIs(t, err, ErrClosed)

	_, err = h.m.Wait(context.Background(), localID)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBackoffDoubles(t *testing.T) {
	m := NewManager(&fakeCreator{}, listcache.New(), Options{BaseDelay: 100 * time.Millisecond})
	defer m.Close()
	for attempts, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
	} {
		if got := m.backoff(attempts); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestOnConfirmed_SeesRecordBeforeWaitReturns(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	cache := listcache.New()
	m := NewManager(&fakeCreator{}, cache, Options{
		Clock: testclock.NewFakeClock(time.Now()),
		OnConfirmed: func(localID string, rec model.Task) {
			mu.Lock()
			got[localID] = rec.ID
			mu.Unlock()
		},
	})
	t.Cleanup(m.Close)

	localID, err := m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := m.Wait(ctx, localID)
	require.NoError(t, err)
	require.Equal(t, model.SyncOK, st)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "task-1", got[localID])
}

// stepWithin advances clk by d and fails when Step does not return in time.
func stepWithin(t *testing.T, clk *testclock.FakeClock, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		clk.Step(d)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("clock.Step(%v) did not return", d)
	}
}

func TestBackoffTimersDoNotBlockTheClock(t *testing.T) {
	cr := &fakeCreator{failFirst: -1}
	h := newHarness(t, cr)

	localID, err := h.m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)

	for i, delay := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		h.waitCalls(t, i+1)
		h.waitTimer(t)
		stepWithin(t, h.clk, delay)
	}
	h.waitCalls(t, DefaultMaxRetries)

	require.Equal(t, model.SyncError, h.wait(t, localID))
	require.Equal(t, DefaultMaxRetries, cr.callCount())
	require.False(t, h.clk.HasWaiters())
}

// slowCreator advances the fake clock while a request is in flight.
type slowCreator struct {
	clk  *testclock.FakeClock
	took time.Duration
}

func (s *slowCreator) CreateTask(_ context.Context, req model.CreateTaskRequest) (model.Task, error) {
	s.clk.Step(s.took)
	return model.Task{ID: "task-1", Title: req.Title, Status: req.Status}, nil
}

func TestAttemptLatencyUsesInjectedClock(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	clk := testclock.NewFakeClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	cache := listcache.New()
	m := NewManager(&slowCreator{clk: clk, took: 300 * time.Millisecond}, cache, Options{
		Clock: clk, Metrics: metrics, Logger: logging.NewTestLogger(t),
	})
	t.Cleanup(m.Close)
	h := &harness{m: m, cache: cache, clk: clk}

	localID, err := m.QuickAdd("week", "Buy milk", weekOnly, Fields{})
	require.NoError(t, err)
	require.Equal(t, model.SyncOK, h.wait(t, localID))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "taskboard_optimistic_create_attempt_duration_seconds" {
			continue
		}
		found = true
		hist := mf.GetMetric()[0].GetHistogram()
		require.Equal(t, uint64(1), hist.GetSampleCount())
		require.InDelta(t, 0.3, hist.GetSampleSum(), 1e-9)
	}
	require.True(t, found, "latency histogram not registered")
}
