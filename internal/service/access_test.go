package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

func TestGetContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, consult(dryCough, "tok-u1"))
	require.NoError(t, err)

	view, err := f.svc.GetContext(ctx, "tok-u1", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", view.UserID)
	assert.Len(t, view.Turns, 1)
	assert.Equal(t, 10, view.MaxTurns)

	_, err = f.svc.GetContext(ctx, "tok-u2", "u1")
	requireKind(t, err, domain.ErrorKindForbidden)

	view, err = f.svc.GetContext(ctx, "tok-admin", "u1")
	require.NoError(t, err)
	assert.Len(t, view.Turns, 1)

	_, err = f.svc.GetContext(ctx, "", "")
	requireKind(t, err, domain.ErrorKindUnauthenticated)

	_, err = f.svc.GetContext(ctx, "bogus", "")
	requireKind(t, err, domain.ErrorKindUnauthenticated)
}

func TestClearContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for _, tok := range []string{"tok-u1", "tok-u2"} {
		_, err := f.svc.Handle(ctx, consult(dryCough, tok))
		require.NoError(t, err)
	}

	_, err := f.svc.ClearContext(ctx, "tok-u1", "u2")
	requireKind(t, err, domain.ErrorKindForbidden)
	assert.Len(t, f.sessions.GetContext(ctx, "u2"), 1)

	requestID, err := f.svc.ClearContext(ctx, "tok-u1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
	assert.Empty(t, f.sessions.GetContext(ctx, "u1"))

	_, err = f.svc.ClearContext(ctx, "tok-admin", "u2")
	require.NoError(t, err)
	assert.Empty(t, f.sessions.GetContext(ctx, "u2"))
}

func TestEvents(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	resp, err := f.svc.Handle(ctx, consult(dryCough, "tok-u1"))
	require.NoError(t, err)

	_, _, err = f.svc.Events(ctx, "tok-u1", resp.RequestID, 0, 0)
	requireKind(t, err, domain.ErrorKindForbidden)

	c, events, err := f.svc.Events(ctx, "tok-admin", resp.RequestID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultStateResponded, c.Status)

	types := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, domain.EventTypeConsultReceived, types[0])
	assert.Contains(t, types, domain.EventTypeReasoningStarted)
	assert.Contains(t, types, domain.EventTypeReasoningDone)
	assert.Equal(t, domain.EventTypeConsultResponded, types[len(types)-1])

	_, _, err = f.svc.Events(ctx, "tok-admin", "missing", 0, 0)
	requireKind(t, err, domain.ErrorKindNotFound)
}
