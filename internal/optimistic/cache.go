package optimistic

import (
	"math"

	"taskboard/internal/listcache"
	"taskboard/internal/model"
)

// DefaultPosition is the display position of the first entry in an empty bucket.
const DefaultPosition = 1000

// Cache is the list-view store the manager writes placeholders into.
// listcache.Store implements it.
type Cache interface {
	// GetAll returns every cached view whose filter satisfies match (nil matches all).
	GetAll(match func(model.TaskFilter) bool) []listcache.View
	// Set replaces the list under key with update(old).
	Set(key listcache.Key, update func([]model.Task) []model.Task) bool
	// Ensure makes sure a view for filter exists.
	Ensure(filter model.TaskFilter) listcache.Key
}

// insertEntry places placeholder at the top of its bucket in every view that admits it
// and returns the display position it was given. The view for active is created
// first if it is not cached yet.
func insertEntry(c Cache, active model.TaskFilter, placeholder model.Task) float64 {
	c.Ensure(active)
	views := c.GetAll(func(f model.TaskFilter) bool { return f.Admits(placeholder) })

	placeholder.SortOrder = positionBefore(views, placeholder.Status)
	localID := placeholder.ID
	for _, v := range views {
		c.Set(v.Key, func(old []model.Task) []model.Task {
			out := make([]model.Task, 0, len(old)+1)
			out = append(out, placeholder)
			for _, t := range old {
				if t.ID == localID {
					continue
				}
				out = append(out, t)
			}
			listcache.SortByPosition(out)
			return out
		})
	}
	return placeholder.SortOrder
}

// positionBefore returns a position strictly before the first task of bucket
// across all views, or DefaultPosition when the bucket is empty everywhere.
func positionBefore(views []listcache.View, bucket string) float64 {
	first := math.Inf(1)
	for _, v := range views {
		for _, t := range v.Tasks {
			if t.Status == bucket && t.SortOrder < first {
				first = t.SortOrder
			}
		}
	}
	if math.IsInf(first, 1) {
		return DefaultPosition
	}
	return math.Floor(((first - 1) + first) / 2)
}

// reconcileEntry swaps the placeholder localID for rec in every view holding it.
// rec keeps the placeholder's position; its own sort order is discarded.
// A view that already holds rec (a refetch got there first) just loses the placeholder.
func reconcileEntry(c Cache, localID string, position float64, rec model.Task) {
	rec.SortOrder = position
	rec.Sync = nil
	for _, v := range c.GetAll(nil) {
		if !containsID(v.Tasks, localID) {
			continue
		}
		c.Set(v.Key, func(old []model.Task) []model.Task {
			hasServer := containsID(old, rec.ID)
			out := make([]model.Task, 0, len(old))
			for _, t := range old {
				switch {
				case t.ID == localID:
					if !hasServer {
						out = append(out, rec)
					}
				case t.ID == rec.ID:
					t.SortOrder = position
					out = append(out, t)
				default:
					out = append(out, t)
				}
			}
			listcache.SortByPosition(out)
			return out
		})
	}
}

// markEntry sets the sync state shown on the placeholder localID.
func markEntry(c Cache, localID string, state model.SyncState) {
	for _, v := range c.GetAll(nil) {
		if !containsID(v.Tasks, localID) {
			continue
		}
		c.Set(v.Key, func(old []model.Task) []model.Task {
			out := make([]model.Task, 0, len(old))
			for _, t := range old {
				if t.ID == localID && t.Sync != nil {
					meta := *t.Sync
					meta.State = state
					t.Sync = &meta
				}
				out = append(out, t)
			}
			return out
		})
	}
}

// removeEntry drops the placeholder localID from every view.
func removeEntry(c Cache, localID string) {
	for _, v := range c.GetAll(nil) {
		if !containsID(v.Tasks, localID) {
			continue
		}
		c.Set(v.Key, func(old []model.Task) []model.Task {
			out := make([]model.Task, 0, len(old))
			for _, t := range old {
				if t.ID != localID {
					out = append(out, t)
				}
			}
			return out
		})
	}
}

func containsID(tasks []model.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
