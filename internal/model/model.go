package model

import (
	"fmt"
	"strings"
	"time"
)

// SyncState is the client-side sync status of a task created optimistically.
type SyncState string

const (
	SyncSyncing SyncState = "syncing"
	SyncError   SyncState = "error"
	SyncOK      SyncState = "ok"
)

// Size is a coarse effort estimate.
type Size string

const (
	SizeXS Size = "xs"
	SizeS  Size = "s"
	SizeM  Size = "m"
	SizeL  Size = "l"
	SizeXL Size = "xl"
)

// ParseSize accepts a size in any case.
func ParseSize(s string) (Size, error) {
	switch sz := Size(strings.ToLower(strings.TrimSpace(s))); sz {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL:
		return sz, nil
	}
	return "", fmt.Errorf("invalid size: %q (expected xs, s, m, l or xl)", s)
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	ProjectID *string `json:"project_id,omitempty"`
	GoalID    *string `json:"goal_id,omitempty"`

	Size          *Size      `json:"size,omitempty"`
	EffortMinutes *int       `json:"effort_minutes,omitempty"`
	SoftDueAt     *time.Time `json:"soft_due_at,omitempty"`
	HardDueAt     *time.Time `json:"hard_due_at,omitempty"`

	SortOrder float64 `json:"sort_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Sync is set only on optimistic placeholders that the server has not confirmed yet.
	Sync *SyncMeta `json:"sync,omitempty"`
}

// IsOptimistic reports whether t is a local placeholder rather than a server record.
func (t Task) IsOptimistic() bool { return t.Sync != nil }

type SyncMeta struct {
	LocalID         string    `json:"local_id"`
	ClientRequestID string    `json:"client_request_id"`
	State           SyncState `json:"state"`
}

// InsertAt selects where the server places a newly created task within its bucket.
type InsertAt string

const (
	InsertTop    InsertAt = "top"
	InsertBottom InsertAt = "bottom"
)

// CreateTaskRequest is the JSON body of POST /api/tasks.
type CreateTaskRequest struct {
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Description   string     `json:"description,omitempty"`
	Tags          []string   `json:"tags"`
	ProjectID     *string    `json:"project_id,omitempty"`
	GoalID        *string    `json:"goal_id,omitempty"`
	Size          *Size      `json:"size,omitempty"`
	EffortMinutes *int       `json:"effort_minutes,omitempty"`
	SoftDueAt     *time.Time `json:"soft_due_at,omitempty"`
	HardDueAt     *time.Time `json:"hard_due_at,omitempty"`

	ClientRequestID string   `json:"client_request_id"`
	InsertAt        InsertAt `json:"insert_at"`
}

// UpdateTaskRequest is the JSON body of PATCH /api/tasks/:id. Nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TaskFilter selects the tasks shown by one list view.
// Empty fields do not constrain the view.
type TaskFilter struct {
	Statuses  []string `json:"statuses,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	GoalID    string   `json:"goal_id,omitempty"`
	Tag       string   `json:"tag,omitempty"`
}

// Admits reports whether a task belongs in a view with filter f.
func (f TaskFilter) Admits(t Task) bool {
	if !f.AdmitsStatus(t.Status) {
		return false
	}
	if f.ProjectID != "" && (t.ProjectID == nil || *t.ProjectID != f.ProjectID) {
		return false
	}
	if f.GoalID != "" && (t.GoalID == nil || *t.GoalID != f.GoalID) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AdmitsStatus reports whether the view shows the given bucket.
func (f TaskFilter) AdmitsStatus(status string) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}
