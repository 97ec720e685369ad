package optimistic

import (
	"errors"
	"strings"
	"time"

	"taskboard/internal/ids"
	"taskboard/internal/model"
)

var (
	// ErrBlankTitle is returned when a quick add has nothing but whitespace for a title.
	ErrBlankTitle = errors.New("title is blank")
	// ErrBlankBucket is returned when no target bucket is given.
	ErrBlankBucket = errors.New("bucket is blank")
	// ErrClosed is returned by operations on a Manager after Close.
	ErrClosed = errors.New("optimistic manager closed")
)

// Fields are the optional user-supplied fields of a new task.
type Fields struct {
	Description   string
	Tags          []string
	ProjectID     *string
	GoalID        *string
	Size          *model.Size
	EffortMinutes *int
	SoftDueAt     *time.Time
	HardDueAt     *time.Time
}

// Entry is a freshly built optimistic entry: the placeholder shown in the cache and
// the request that will be sent (unchanged) on every attempt.
type Entry struct {
	LocalID string
	Token   string
	Request model.CreateTaskRequest
	Task    model.Task
}

// NewEntry builds an optimistic entry for a task titled title in bucket.
// It generates identifiers only; it does not touch any cache.
func NewEntry(bucket, title string, extra Fields, now time.Time) (Entry, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Entry{}, ErrBlankTitle
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return Entry{}, ErrBlankBucket
	}
	localID, err := ids.NewLocal()
	if err != nil {
		return Entry{}, err
	}
	token := ids.NewRequestToken()

	tags := append([]string{}, extra.Tags...)
	req := model.CreateTaskRequest{
		Title:           title,
		Status:          bucket,
		Description:     extra.Description,
		Tags:            tags,
		ProjectID:       extra.ProjectID,
		GoalID:          extra.GoalID,
		Size:            extra.Size,
		EffortMinutes:   extra.EffortMinutes,
		SoftDueAt:       extra.SoftDueAt,
		HardDueAt:       extra.HardDueAt,
		ClientRequestID: token,
		InsertAt:        model.InsertTop,
	}
	task := model.Task{
		ID:            localID,
		Title:         title,
		Status:        bucket,
		Description:   extra.Description,
		Tags:          append([]string(nil), tags...),
		ProjectID:     extra.ProjectID,
		GoalID:        extra.GoalID,
		Size:          extra.Size,
		EffortMinutes: extra.EffortMinutes,
		SoftDueAt:     extra.SoftDueAt,
		HardDueAt:     extra.HardDueAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		Sync: &model.SyncMeta{
			LocalID:         localID,
			ClientRequestID: token,
			State:           model.SyncSyncing,
		},
	}
	return Entry{LocalID: localID, Token: token, Request: req, Task: task}, nil
}

// withFilterDefaults fills the project, goal and tag of the active view into extra
// so a task added while a view is filtered shows up in that view.
func withFilterDefaults(extra Fields, active model.TaskFilter) Fields {
	if extra.ProjectID == nil && active.ProjectID != "" {
		p := active.ProjectID
		extra.ProjectID = &p
	}
	if extra.GoalID == nil && active.GoalID != "" {
		g := active.GoalID
		extra.GoalID = &g
	}
	if active.Tag != "" {
		has := false
		for _, t := range extra.Tags {
			if t == active.Tag {
				has = true
				break
			}
		}
		if !has {
			extra.Tags = append(append([]string(nil), extra.Tags...), active.Tag)
		}
	}
	return extra
}
