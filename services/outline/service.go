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
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the session limit is reached.
var ErrTooManySessions = errors.New("too many sessions")

// ServiceConfig configures the outline service.
type ServiceConfig struct {
	// Session configures each DocumentSession.
	Session SessionConfig

	// MaxSessions caps concurrently open sessions.
	// Default: 16
	MaxSessions int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Session:     DefaultSessionConfig(),
		MaxSessions: 16,
	}
}

// Service manages outline sessions for HTTP clients. Each session is one
// independent editor timeline, keyed by a UUID.
//
// Thread Safety:
//
//	Service is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	cfg      ServiceConfig
	sessions map[string]*sessionEntry
}

// sessionEntry pairs a session with its snapshot broadcaster.
type sessionEntry struct {
	session *DocumentSession
	casts   *broadcaster
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 16
	}
	return &Service{
		cfg:      cfg,
		sessions: make(map[string]*sessionEntry),
	}
}

// CreateSession allocates a new session and returns its ID.
func (s *Service) CreateSession() (string, *DocumentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.cfg.MaxSessions {
		return "", nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.cfg.MaxSessions)
	}

	id := uuid.NewString()
	session := NewDocumentSession(s.cfg.Session)
	casts := newBroadcaster()
	session.OnUpdate(casts.publish)

	s.sessions[id] = &sessionEntry{session: session, casts: casts}
	return id, session, nil
}

// Session resolves a session by ID.
func (s *Service) Session(id string) (*DocumentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return entry.session, nil
}

// Subscribe attaches a snapshot listener to a session's broadcaster.
// The returned cancel func must be called when the subscriber goes away.
func (s *Service) Subscribe(id string) (<-chan Snapshot, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ch, cancel := entry.casts.subscribe()
	return ch, cancel, nil
}

// CloseSession disposes a session.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	entry.session.Close()
	entry.casts.close()
	return nil
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
		e.casts.close()
	}
}
