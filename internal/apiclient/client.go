// Package apiclient talks to the taskboard REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskboard/internal/logging"
	"taskboard/internal/model"
	"taskboard/internal/optimistic"

	"github.com/go-logr/logr"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

type Client struct {
	base *url.URL
	http *http.Client
	log  logr.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the API rooted at baseURL (e.g. http://127.0.0.1:7420).
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logr.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.WithName("apiclient")
	return c, nil
}

var _ optimistic.Creator = (*Client)(nil)

// CreateTask posts req. A replayed create (same client_request_id) returns the original task.
func (c *Client) CreateTask(ctx context.Context, req model.CreateTaskRequest) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", nil, req, &t)
	return t, err
}

func (c *Client) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		q.Set("status", strings.Join(f.Statuses, ","))
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
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, &t)
	return t, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, req model.UpdateTaskRequest) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), nil, req, &t)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.V(logging.TRACE).Info("response", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		se.Message = payload.Error
	} else {
		se.Message = strings.TrimSpace(string(b))
	}
	return se
}
