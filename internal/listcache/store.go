// Package listcache holds the client-side task lists, one per filtered view.
//
// Views are replaced whole on every write; callers never see a slice that a later
// write mutates. Subscribers get a coalesced wake-up on each change and re-read
// whatever views they render.
package listcache

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"taskboard/internal/model"
)

// Key identifies a cached view. It is the canonical encoding of the view's filter.
type Key string

// KeyFor returns the canonical key for a filter. Status order does not matter.
func KeyFor(f model.TaskFilter) Key {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		st := append([]string(nil), f.Statuses...)
		sort.Strings(st)
		q.Set("status", strings.Join(st, ","))
	}
	if f.ProjectID != "" {
		q.Set("project_id", f.ProjectID)
	}
	if f.GoalID != "" {
		q.Set("goal_id", f.GoalID)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if len(q) == 0 {
		return "tasks"
	}
	return Key("tasks?" + q.Encode())
}

type View struct {
	Key    Key
	Filter model.TaskFilter
	Tasks  []model.Task
}

type Store struct {
	mu    sync.RWMutex
	views map[Key]View

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func New() *Store {
	return &Store{
		views: map[Key]View{},
		subs:  map[int]chan struct{}{},
	}
}

// Ensure creates an empty view for f if none exists and returns its key.
func (s *Store) Ensure(f model.TaskFilter) Key {
	k := KeyFor(f)
	s.mu.Lock()
	_, ok := s.views[k]
	if !ok {
		s.views[k] = View{Key: k, Filter: cloneFilter(f), Tasks: []model.Task{}}
	}
	s.mu.Unlock()
	if !ok {
		s.notify()
	}
	return k
}

// Put replaces the contents of the view for f, creating it if needed.
func (s *Store) Put(f model.TaskFilter, tasks []model.Task) Key {
	k := KeyFor(f)
	next := append([]model.Task(nil), tasks...)
	SortByPosition(next)
	s.mu.Lock()
	s.views[k] = View{Key: k, Filter: cloneFilter(f), Tasks: next}
	s.mu.Unlock()
	s.notify()
	return k
}

// Get returns a copy of one view.
func (s *Store) Get(k Key) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[k]
	if !ok {
		return View{}, false
	}
	return copyView(v), true
}

// GetAll returns copies of every view whose filter satisfies match, ordered by key.
// A nil match returns all views.
func (s *Store) GetAll(match func(model.TaskFilter) bool) []View {
	s.mu.RLock()
	out := make([]View, 0, len(s.views))
	for _, v := range s.views {
		if match != nil && !match(v.Filter) {
			continue
		}
		out = append(out, copyView(v))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set replaces the list stored under k with update(old). update receives a copy and
// must return the new list; it must not call back into the Store.
// Set reports false (and does nothing) when k is not cached.
func (s *Store) Set(k Key, update func([]model.Task) []model.Task) bool {
	s.mu.Lock()
	v, ok := s.views[k]
	if !ok {
		s.mu.Unlock()
		return false
	}
	next := update(append([]model.Task(nil), v.Tasks...))
	if next == nil {
		next = []model.Task{}
	}
	v.Tasks = next
	s.views[k] = v
	s.mu.Unlock()
	s.notify()
	return true
}

// Drop removes a view.
func (s *Store) Drop(k Key) {
	s.mu.Lock()
	_, ok := s.views[k]
	delete(s.views, k)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// Subscribe returns a channel that receives a value after one or more changes.
// Wake-ups coalesce: a slow reader sees one pending signal, not a backlog.
// The cancel func closes the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SortByPosition orders tasks by SortOrder, keeping the existing order for ties.
func SortByPosition(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].SortOrder < tasks[j].SortOrder })
}

func copyView(v View) View {
	v.Filter = cloneFilter(v.Filter)
	v.Tasks = append([]model.Task(nil), v.Tasks...)
	return v
}

func cloneFilter(f model.TaskFilter) model.TaskFilter {
	f.Statuses = append([]string(nil), f.Statuses...)
	return f
}
