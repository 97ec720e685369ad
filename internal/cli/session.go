package cli

import (
	"context"
	"sync"

	"taskboard/internal/apiclient"
	"taskboard/internal/listcache"
	"taskboard/internal/model"
	"taskboard/internal/optimistic"
	"taskboard/internal/statusutil"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// session is the client side of one interactive run: the list cache, the optimistic
// manager on top of it and the API client it retries against.
type session struct {
	client *apiclient.Client
	cache  *listcache.Store
	mgr    *optimistic.Manager

	mu        sync.Mutex
	confirmed map[string]model.Task // local id -> server record
}

func newSession(app *App, reg prometheus.Registerer) (*session, error) {
	client, err := newClient(app)
	if err != nil {
		return nil, err
	}
	s := &session{
		client:    client,
		cache:     listcache.New(),
		confirmed: map[string]model.Task{},
	}
	var metrics *optimistic.Metrics
	if reg != nil {
		metrics = optimistic.NewMetrics(reg)
	}
	s.mgr = optimistic.NewManager(client, s.cache, optimistic.Options{
		OnConfirmed:    s.recordConfirmed,
		MaxRetries:     app.cfg.Client.MaxRetries,
		BaseDelay:      app.cfg.Client.BaseDelay,
		AttemptTimeout: app.cfg.Client.AttemptTimeout,
		Logger:         app.log,
		Metrics:        metrics,
	})
	return s, nil
}

func (s *session) recordConfirmed(localID string, rec model.Task) {
	s.mu.Lock()
	s.confirmed[localID] = rec
	s.mu.Unlock()
}

// confirmedTask returns the server record that replaced the placeholder localID.
func (s *session) confirmedTask(localID string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.confirmed[localID]
	return t, ok
}

// preload fetches the view for f into the cache, one request per bucket.
func (s *session) preload(ctx context.Context, f model.TaskFilter) error {
	buckets := f.Statuses
	if len(buckets) == 0 {
		buckets = statusutil.Buckets
	}
	parts := make([][]model.Task, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range buckets {
		g.Go(func() error {
			bf := f
			bf.Statuses = []string{b}
			tasks, err := s.client.ListTasks(gctx, bf)
			if err != nil {
				return err
			}
			parts[i] = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var all []model.Task
	for _, p := range parts {
		all = append(all, p...)
	}
	s.cache.Put(f, all)
	return nil
}

func (s *session) Close() {
	s.mgr.Close()
}
