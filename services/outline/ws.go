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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// snapshotBuffer is the per-subscriber channel depth. A slow consumer
	// drops intermediate snapshots rather than blocking publishers; only
	// the most recent tree matters to a viewer.
	snapshotBuffer = 8

	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second
)

// broadcaster fans Snapshot updates out to any number of subscribers.
//
// Thread Safety: All methods are safe for concurrent use.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Snapshot]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[chan Snapshot]struct{}),
	}
}

// publish delivers a snapshot to every subscriber. Subscribers that have
// fallen behind lose the oldest buffered snapshot so the channel always
// converges on the latest state.
func (b *broadcaster) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest entry and retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed when cancel is called or the
// broadcaster shuts down.
func (b *broadcaster) subscribe() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, snapshotBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// close shuts down the broadcaster and closes all subscriber channels.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon serves local editor hosts; origin checks are left to
	// any reverse proxy in front of it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWatch streams outline snapshots over a websocket.
//
// Description:
//
//	Upgrades the connection and writes one JSON-encoded Snapshot per
//	outline update until the client disconnects or the session closes.
//	The current snapshot is sent immediately on connect so the client
//	never starts from an empty view.
//
// HTTP: GET /v1/outline/sessions/:id/watch
func (h *Handlers) HandleWatch(c *gin.Context) {
	id := c.Param("id")

	session, err := h.svc.Session(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	updates, cancel, err := h.svc.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	defer cancel()

	conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Drain reads so close frames and pings are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	writeSnap := func(snap Snapshot) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			slog.Debug("snapshot write failed, closing watch",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
			return false
		}
		return true
	}

	if !writeSnap(session.Snapshot()) {
		return
	}

	for snap := range updates {
		if !writeSnap(snap) {
			return
		}
	}
	// Session closed; tell the client before going away.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
}
