// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outline

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string   `json:"session_id"`
	Snapshot  Snapshot `json:"snapshot"`
}

// OpenRequest opens a document in a session.
type OpenRequest struct {
	// Path is the document path; the extension gates outline support.
	Path string `json:"path" binding:"required"`

	// Content is the full source text.
	Content string `json:"content"`
}

// EditRequest reports one contiguous text change.
type EditRequest struct {
	// OldStart/OldEnd/NewEnd are offsets in the host's native units.
	OldStart int `json:"old_start"`
	OldEnd   int `json:"old_end"`
	NewEnd   int `json:"new_end"`

	// Content is the full post-edit source text.
	Content string `json:"content"`
}

// FilterRequest updates the outline filter text.
type FilterRequest struct {
	Text string `json:"text"`
}

// SortRequest toggles sibling sorting.
type SortRequest struct {
	Enabled bool `json:"enabled"`
}

// CursorRequest reports a caret move.
type CursorRequest struct {
	Line int `json:"line" binding:"required"`
}

// ExpandRequest records an expand/collapse by stable key.
type ExpandRequest struct {
	Key      string `json:"key" binding:"required"`
	Expanded bool   `json:"expanded"`
}

// ActivateRequest resolves a node to its navigation target.
type ActivateRequest struct {
	Key string `json:"key" binding:"required"`
}

// CursorResponse is returned by the cursor endpoint.
type CursorResponse struct {
	// Selected is the stable key of the deepest containing symbol, empty
	// when no symbol contains the line.
	Selected string `json:"selected"`
}

// Handlers exposes the outline service over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the handler set.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// resolveSession fetches the session for the :id route param, writing the
// error response itself when the session is unknown.
func (h *Handlers) resolveSession(c *gin.Context) *DocumentSession {
	session, err := h.svc.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown session",
			Code:  "SESSION_NOT_FOUND",
		})
		return nil
	}
	return session
}

// HandleCreateSession handles POST /v1/outline/sessions.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	id, session, err := h.svc.CreateSession()
	if err != nil {
		if errors.Is(err, ErrTooManySessions) {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Session limit reached",
				Code:  "TOO_MANY_SESSIONS",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create session",
			Code:  "INTERNAL",
		})
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{
		SessionID: id,
		Snapshot:  session.Snapshot(),
	})
}

// HandleCloseSession handles DELETE /v1/outline/sessions/:id.
func (h *Handlers) HandleCloseSession(c *gin.Context) {
	if err := h.svc.CloseSession(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown session",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// HandleOpen handles POST /v1/outline/sessions/:id/open.
//
// Response:
//
//	200 OK: Snapshot (possibly with StatusUnsupported for unknown types)
//	400 Bad Request: Validation error
//	404 Not Found: Unknown session
func (h *Handlers) HandleOpen(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("invalid open request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	snap, err := session.Open(c.Request.Context(), req.Path, []byte(req.Content))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "OPEN_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// HandleEdit handles POST /v1/outline/sessions/:id/edit.
func (h *Handlers) HandleEdit(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	change := Change{OldStart: req.OldStart, OldEnd: req.OldEnd, NewEnd: req.NewEnd}
	if err := session.ApplyChange(change, []byte(req.Content)); err != nil {
		status := http.StatusBadRequest
		code := "INVALID_CHANGE"
		if errors.Is(err, ErrNoDocument) {
			status = http.StatusConflict
			code = "NO_DOCUMENT"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queued": true})
}

// HandleFilter handles POST /v1/outline/sessions/:id/filter.
func (h *Handlers) HandleFilter(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	session.SetFilter(req.Text)
	c.JSON(http.StatusOK, gin.H{"queued": true})
}

// HandleSort handles POST /v1/outline/sessions/:id/sort.
func (h *Handlers) HandleSort(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	c.JSON(http.StatusOK, session.SetSorted(req.Enabled))
}

// HandleCursor handles POST /v1/outline/sessions/:id/cursor.
func (h *Handlers) HandleCursor(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req CursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	node := session.CursorMoved(req.Line)
	resp := CursorResponse{}
	if node != nil {
		// The key round-trips into the expand and activate endpoints.
		resp.Selected = session.KeyFor(node)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleExpand handles POST /v1/outline/sessions/:id/expand.
func (h *Handlers) HandleExpand(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	session.SetExpanded(req.Key, req.Expanded)
	c.JSON(http.StatusOK, gin.H{"applied": true})
}

// HandleActivate handles POST /v1/outline/sessions/:id/activate.
//
// Response:
//
//	200 OK: NavigationTarget
//	404 Not Found: Unknown session or key
func (h *Handlers) HandleActivate(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	target, ok := session.Activate(req.Key)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown symbol key",
			Code:  "SYMBOL_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, target)
}

// HandleTree handles GET /v1/outline/sessions/:id/tree.
func (h *Handlers) HandleTree(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// HandleStatus handles GET /v1/outline/sessions/:id/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	session := h.resolveSession(c)
	if session == nil {
		return
	}

	snap := session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    snap.Status,
		"scheduler": session.SchedulerState().String(),
	})
}

// HandleHealth handles GET /v1/outline/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.svc.SessionCount(),
	})
}
