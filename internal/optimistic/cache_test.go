package optimistic

import (
	"testing"

	"taskboard/internal/listcache"
	"taskboard/internal/model"

	"github.com/google/go-cmp/cmp"
)

func placeholder(id, status string) model.Task {
	return model.Task{ID: id, Title: id, Status: status, Sync: &model.SyncMeta{LocalID: id, State: model.SyncSyncing}}
}

func taskIDs(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestInsertEntry_EmptyBucketGetsDefaultPosition(t *testing.T) {
	c := listcache.New()
	active := model.TaskFilter{Statuses: []string{"week"}}

	pos := insertEntry(c, active, placeholder("tmp-a", "week"))
	if pos != DefaultPosition {
		t.Fatalf("position = %v, want %v", pos, DefaultPosition)
	}
	v, ok := c.Get(listcache.KeyFor(active))
	if !ok {
		t.Fatalf("active view was not created")
	}
	if len(v.Tasks) != 1 || v.Tasks[0].SortOrder != DefaultPosition {
		t.Fatalf("unexpected view: %+v", v.Tasks)
	}
}

func TestInsertEntry_PlacesStrictlyBeforeFirstInBucket(t *testing.T) {
	c := listcache.New()
	active := model.TaskFilter{Statuses: []string{"week"}}
	c.Put(active, []model.Task{{ID: "task-x", Status: "week", SortOrder: 2000}})

	pos := insertEntry(c, active, placeholder("tmp-a", "week"))
	if pos != 1999 {
		t.Fatalf("position = %v, want 1999", pos)
	}
	v, _ := c.Get(listcache.KeyFor(active))
	if diff := cmp.Diff([]string{"tmp-a", "task-x"}, taskIDs(v.Tasks)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertEntry_UsesFirstAcrossAllMatchingViews(t *testing.T) {
	c := listcache.New()
	board := model.TaskFilter{}
	week := model.TaskFilter{Statuses: []string{"week"}}
	today := model.TaskFilter{Statuses: []string{"today"}}
	c.Put(board, []model.Task{
		{ID: "task-t", Status: "today", SortOrder: 10},
		{ID: "task-w", Status: "week", SortOrder: 500},
	})
	c.Put(week, []model.Task{{ID: "task-w2", Status: "week", SortOrder: 800}})
	c.Put(today, []model.Task{{ID: "task-t", Status: "today", SortOrder: 10}})

	pos := insertEntry(c, week, placeholder("tmp-a", "week"))
	if pos != 499 {
		t.Fatalf("position = %v, want 499 (before the smallest week position)", pos)
	}

	bv, _ := c.Get(listcache.KeyFor(board))
	if diff := cmp.Diff([]string{"task-t", "tmp-a", "task-w"}, taskIDs(bv.Tasks)); diff != "" {
		t.Fatalf("board order mismatch (-want +got):\n%s", diff)
	}
	wv, _ := c.Get(listcache.KeyFor(week))
	if diff := cmp.Diff([]string{"tmp-a", "task-w2"}, taskIDs(wv.Tasks)); diff != "" {
		t.Fatalf("week order mismatch (-want +got):\n%s", diff)
	}
	tv, _ := c.Get(listcache.KeyFor(today))
	if diff := cmp.Diff([]string{"task-t"}, taskIDs(tv.Tasks)); diff != "" {
		t.Fatalf("today view must not receive a week task (-want +got):\n%s", diff)
	}
}

func TestReconcileEntry_ReplacesInPlaceKeepingPosition(t *testing.T) {
	c := listcache.New()
	f := model.TaskFilter{}
	c.Put(f, []model.Task{{ID: "task-x", Status: "week", SortOrder: 2000}})
	pos := insertEntry(c, f, placeholder("tmp-a", "week"))

	reconcileEntry(c, "tmp-a", pos, model.Task{ID: "task-new", Status: "week", SortOrder: -50})

	v, _ := c.Get(listcache.KeyFor(f))
	if diff := cmp.Diff([]string{"task-new", "task-x"}, taskIDs(v.Tasks)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if v.Tasks[0].SortOrder != pos {
		t.Fatalf("server sort order should be replaced by %v, got %v", pos, v.Tasks[0].SortOrder)
	}
	if v.Tasks[0].Sync != nil {
		t.Fatalf("reconciled record must not be optimistic")
	}
}

func TestReconcileEntry_DoesNotDuplicateWhenRecordAlreadyFetched(t *testing.T) {
	c := listcache.New()
	f := model.TaskFilter{}
	pos := insertEntry(c, f, placeholder("tmp-a", "week"))
	// A refetch raced ahead and already holds the server record.
	c.Set(listcache.KeyFor(f), func(old []model.Task) []model.Task {
		return append(old, model.Task{ID: "task-new", Status: "week", SortOrder: 3})
	})

	reconcileEntry(c, "tmp-a", pos, model.Task{ID: "task-new", Status: "week", SortOrder: 3})

	v, _ := c.Get(listcache.KeyFor(f))
	if diff := cmp.Diff([]string{"task-new"}, taskIDs(v.Tasks)); diff != "" {
		t.Fatalf("tasks mismatch (-want +got):\n%s", diff)
	}
	if v.Tasks[0].SortOrder != pos {
		t.Fatalf("position = %v, want %v", v.Tasks[0].SortOrder, pos)
	}
}

func TestMarkAndRemoveEntry(t *testing.T) {
	c := listcache.New()
	a := model.TaskFilter{}
	b := model.TaskFilter{Statuses: []string{"week"}}
	c.Ensure(a)
	insertEntry(c, b, placeholder("tmp-a", "week"))

	before, _ := c.Get(listcache.KeyFor(a))
	markEntry(c, "tmp-a", model.SyncError)
	for _, v := range c.GetAll(nil) {
		if len(v.Tasks) != 1 || v.Tasks[0].Sync.State != model.SyncError {
			t.Fatalf("view %s not marked: %+v", v.Key, v.Tasks)
		}
	}
	if before.Tasks[0].Sync.State != model.SyncSyncing {
		t.Fatalf("marking must not mutate earlier snapshots")
	}

	removeEntry(c, "tmp-a")
	for _, v := range c.GetAll(nil) {
		if len(v.Tasks) != 0 {
			t.Fatalf("view %s still holds tasks: %+v", v.Key, v.Tasks)
		}
	}
}
