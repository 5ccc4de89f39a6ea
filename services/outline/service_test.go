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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateSession(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	defer svc.Shutdown()

	id, session, err := svc.CreateSession()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NotNil(t, session)

	resolved, err := svc.Session(id)
	require.NoError(t, err)
	assert.Same(t, session, resolved)
	assert.Equal(t, 1, svc.SessionCount())
}

func TestService_SessionLimit(t *testing.T) {
	svc := NewService(ServiceConfig{Session: DefaultSessionConfig(), MaxSessions: 2})
	defer svc.Shutdown()

	_, _, err := svc.CreateSession()
	require.NoError(t, err)
	id2, _, err := svc.CreateSession()
	require.NoError(t, err)

	_, _, err = svc.CreateSession()
	assert.ErrorIs(t, err, ErrTooManySessions)

	// Closing a session frees a slot.
	require.NoError(t, svc.CloseSession(id2))
	_, _, err = svc.CreateSession()
	assert.NoError(t, err)
}

func TestService_UnknownSession(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	defer svc.Shutdown()

	_, err := svc.Session("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.Subscribe("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, svc.CloseSession("nope"), ErrSessionNotFound)
}

func TestService_SubscribeReceivesUpdates(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	defer svc.Shutdown()

	id, session, err := svc.CreateSession()
	require.NoError(t, err)

	updates, cancel, err := svc.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	_, err = session.Open(context.Background(), "a.cpp", []byte("int x;\n"))
	require.NoError(t, err)

	snap := <-updates
	assert.Equal(t, "a.cpp", snap.Status)
	require.Len(t, snap.Roots, 1)
	assert.Equal(t, "x", snap.Roots[0].Name)
}

func TestService_CloseSessionClosesSubscribers(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	defer svc.Shutdown()

	id, _, err := svc.CreateSession()
	require.NoError(t, err)

	updates, cancel, err := svc.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, svc.CloseSession(id))

	_, open := <-updates
	assert.False(t, open, "subscriber channel closes with the session")
	assert.Equal(t, 0, svc.SessionCount())
}

func TestService_Shutdown(t *testing.T) {
	svc := NewService(DefaultServiceConfig())

	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateSession()
		require.NoError(t, err)
	}
	svc.Shutdown()
	assert.Equal(t, 0, svc.SessionCount())
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b := newBroadcaster()
	defer b.close()

	ch1, cancel1 := b.subscribe()
	defer cancel1()
	ch2, cancel2 := b.subscribe()
	defer cancel2()

	b.publish(Snapshot{Generation: 1})

	assert.Equal(t, uint64(1), (<-ch1).Generation)
	assert.Equal(t, uint64(1), (<-ch2).Generation)
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	b := newBroadcaster()
	defer b.close()

	ch, cancel := b.subscribe()
	defer cancel()

	// Overflow the buffer without draining; the subscriber keeps the most
	// recent snapshot instead of blocking the publisher.
	for g := 1; g <= snapshotBuffer+3; g++ {
		b.publish(Snapshot{Generation: uint64(g)})
	}

	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, uint64(snapshotBuffer+3), last.Generation, "latest snapshot survives")
}

func TestBroadcaster_CancelIsIdempotent(t *testing.T) {
	b := newBroadcaster()
	defer b.close()

	ch, cancel := b.subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancellation must not panic on the removed channel.
	b.publish(Snapshot{Generation: 1})
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := newBroadcaster()
	b.close()
	b.close()

	ch, cancel := b.subscribe()
	defer cancel()

	_, open := <-ch
	assert.False(t, open, "late subscribers get a closed channel")
}
