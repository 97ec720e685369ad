package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"taskboard/internal/ids"
	"taskboard/internal/model"
	"taskboard/internal/statusutil"
)

// defaultSortOrder is given to the first task of an empty bucket.
const defaultSortOrder = 1000

// Create inserts a task. A repeated ClientRequestID within the dedup window returns
// the task created the first time, with replayed=true, and changes nothing.
func (s *Store) Create(ctx context.Context, req model.CreateTaskRequest) (task model.Task, replayed bool, err error) {
	req, err = normalizeCreate(req)
	if err != nil {
		return model.Task{}, false, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	now := s.now().UTC()
	log := s.log.WithValues("clientRequestID", req.ClientRequestID)

	if id, ok := s.dedup.Lookup(req.ClientRequestID); ok {
		t, err := s.Get(ctx, id)
		if err == nil {
			log.V(1).Info("replayed create from dedup cache", "id", id)
			return t, true, nil
		}
		var nf NotFoundError
		if !errors.As(err, &nf) {
			return model.Task{}, false, err
		}
		// The task was deleted since; fall through and create it again.
		s.dedup.Forget(req.ClientRequestID)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Task{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var priorID string
	var priorAt int64
	err = tx.QueryRowContext(ctx, `SELECT task_id, created_at_unixms FROM request_ids WHERE client_request_id = ?`, req.ClientRequestID).Scan(&priorID, &priorAt)
	switch {
	case err == nil:
		age := now.Sub(time.UnixMilli(priorAt))
		if age < s.window {
			t, err := getTask(ctx, tx, priorID)
			if err == nil {
				s.dedup.Remember(req.ClientRequestID, priorID, s.window-age)
				log.V(1).Info("replayed create from database", "id", priorID)
				return t, true, nil
			}
			var nf NotFoundError
			if !errors.As(err, &nf) {
				return model.Task{}, false, err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM request_ids WHERE client_request_id = ?`, req.ClientRequestID); err != nil {
			return model.Task{}, false, err
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return model.Task{}, false, err
	}

	id, err := ids.NewTask()
	if err != nil {
		return model.Task{}, false, err
	}
	order, err := edgeSortOrder(ctx, tx, req.Status, req.InsertAt)
	if err != nil {
		return model.Task{}, false, err
	}
	task = model.Task{
		ID:            id,
		Title:         req.Title,
		Status:        req.Status,
		Description:   req.Description,
		Tags:          req.Tags,
		ProjectID:     req.ProjectID,
		GoalID:        req.GoalID,
		Size:          req.Size,
		EffortMinutes: req.EffortMinutes,
		SoftDueAt:     req.SoftDueAt,
		HardDueAt:     req.HardDueAt,
		SortOrder:     order,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := putTask(ctx, tx, task); err != nil {
		return model.Task{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO request_ids(client_request_id, task_id, created_at_unixms) VALUES(?, ?, ?)`,
		req.ClientRequestID, id, now.UnixMilli()); err != nil {
		return model.Task{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, false, err
	}
	s.dedup.Remember(req.ClientRequestID, id, 0)
	log.V(1).Info("created task", "id", id, "status", task.Status, "sortOrder", order)
	return task, false, nil
}

// List returns the tasks admitted by f ordered by bucket position.
func (s *Store) List(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	q := `SELECT json, sort_order FROM tasks`
	var where []string
	var args []any
	if len(f.Statuses) > 0 {
		ph := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			ph = append(ph, "?")
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.GoalID != "" {
		where = append(where, "goal_id = ?")
		args = append(args, f.GoalID)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sort_order ASC, created_at_unixms ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if !f.Admits(t) {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (model.Task, error) {
	return getTask(ctx, s.db, id)
}

// Update applies the non-nil fields of req. A status change moves the task to the
// top of its new bucket.
func (s *Store) Update(ctx context.Context, id string, req model.UpdateTaskRequest) (model.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return model.Task{}, ValidationError{Field: "title", Msg: "empty"}
		}
		t.Title = title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		st, err := statusutil.NormalizeBucket(*req.Status)
		if err != nil {
			return model.Task{}, ValidationError{Field: "status", Msg: err.Error()}
		}
		if st != t.Status {
			order, err := edgeSortOrder(ctx, tx, st, model.InsertTop)
			if err != nil {
				return model.Task{}, err
			}
			t.Status = st
			t.SortOrder = order
		}
	}
	t.UpdatedAt = s.now().UTC()
	if err := putTask(ctx, tx, t); err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

func normalizeCreate(req model.CreateTaskRequest) (model.CreateTaskRequest, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return req, ValidationError{Field: "title", Msg: "empty"}
	}
	st, err := statusutil.NormalizeBucket(req.Status)
	if err != nil {
		return req, ValidationError{Field: "status", Msg: err.Error()}
	}
	req.Status = st
	req.ClientRequestID = strings.TrimSpace(req.ClientRequestID)
	if req.ClientRequestID == "" {
		return req, ValidationError{Field: "client_request_id", Msg: "empty"}
	}
	switch req.InsertAt {
	case "":
		req.InsertAt = model.InsertTop
	case model.InsertTop, model.InsertBottom:
	default:
		return req, ValidationError{Field: "insert_at", Msg: "expected top or bottom"}
	}
	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	req.Tags = tags
	if req.EffortMinutes != nil && *req.EffortMinutes < 0 {
		return req, ValidationError{Field: "effort_minutes", Msg: "negative"}
	}
	return req, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// edgeSortOrder returns a sort order before the first (top) or after the last
// (bottom) task of status.
func edgeSortOrder(ctx context.Context, q queryer, status string, at model.InsertAt) (float64, error) {
	agg := "MIN(sort_order)"
	if at == model.InsertBottom {
		agg = "MAX(sort_order)"
	}
	var edge sql.NullFloat64
	if err := q.QueryRowContext(ctx, `SELECT `+agg+` FROM tasks WHERE status = ?`, status).Scan(&edge); err != nil {
		return 0, err
	}
	if !edge.Valid {
		return defaultSortOrder, nil
	}
	if at == model.InsertBottom {
		return edge.Float64 + 1, nil
	}
	return edge.Float64 - 1, nil
}

func getTask(ctx context.Context, q queryer, id string) (model.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT json, sort_order FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func scanTask(row scanner) (model.Task, error) {
	var raw string
	var order float64
	if err := row.Scan(&raw, &order); err != nil {
		return model.Task{}, err
	}
	var t model.Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return model.Task{}, err
	}
	t.SortOrder = order
	t.Sync = nil
	return t, nil
}

func putTask(ctx context.Context, e execer, t model.Task) error {
	t.Sync = nil
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `INSERT OR REPLACE INTO tasks(id, status, sort_order, project_id, goal_id, json, created_at_unixms, updated_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, t.SortOrder, nullString(t.ProjectID), nullString(t.GoalID), string(raw),
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
	return err
}

func nullString(p *string) any {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	return *p
}
