package server

import (
	"errors"
	"net/http"
	"strings"

	"taskboard/internal/logging"
	"taskboard/internal/model"
	"taskboard/internal/statusutil"
	"taskboard/internal/store"

	"github.com/gin-gonic/gin"
)

const maxBodySize = 1 << 20 // 1MB

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleList(c *gin.Context) {
	statuses, err := statusutil.ParseBuckets(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := model.TaskFilter{
		Statuses:  statuses,
		ProjectID: strings.TrimSpace(c.Query("project_id")),
		GoalID:    strings.TrimSpace(c.Query("goal_id")),
		Tag:       strings.TrimSpace(c.Query("tag")),
	}
	tasks, err := s.store.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	var req model.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	task, replayed, err := s.store.Create(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if replayed {
		c.Header(ReplayedHeader, "true")
		c.JSON(http.StatusOK, task)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGet(c *gin.Context) {
	task, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	var req model.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	task, err := s.store.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps store errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var nf store.NotFoundError
	var ve store.ValidationError
	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": ve.Field})
	default:
		logging.FromContext(c.Request.Context()).Error(err, "request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
