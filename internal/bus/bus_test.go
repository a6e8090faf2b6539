package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type createThing struct{ Name string }
type findThing struct{ ID string }

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_RoutesByMessageType(t *testing.T) {
	b := newTestBus()

	Register(b, func(_ context.Context, c createThing) (string, error) {
		return "created " + c.Name, nil
	})
	Register(b, func(_ context.Context, q findThing) (int, error) {
		return len(q.ID), nil
	})
	require.Equal(t, 2, b.Registered())

	created, err := Dispatch[createThing, string](context.Background(), b, createThing{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, "created a", created)

	n, err := Dispatch[findThing, int](context.Background(), b, findThing{ID: "abcd"})
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestDispatch_NoHandler(t *testing.T) {
	b := newTestBus()

	_, err := Dispatch[findThing, int](context.Background(), b, findThing{})
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatch_ResultTypeMismatch(t *testing.T) {
	b := newTestBus()
	Register(b, func(_ context.Context, q findThing) (int, error) { return 1, nil })

	_, err := Dispatch[findThing, string](context.Background(), b, findThing{})
	require.ErrorIs(t, err, ErrHandlerType)
}

func TestDispatch_PropagatesHandlerError(t *testing.T) {
	b := newTestBus()
	sentinel := errors.New("boom")
	Register(b, func(_ context.Context, c createThing) (string, error) { return "", sentinel })

	_, err := Dispatch[createThing, string](context.Background(), b, createThing{})
	require.ErrorIs(t, err, sentinel)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	b := newTestBus()
	Register(b, func(_ context.Context, c createThing) (string, error) { panic("bad handler") })

	_, err := Dispatch[createThing, string](context.Background(), b, createThing{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad handler")
}

func TestRegister_DuplicatePanics(t *testing.T) {
	b := newTestBus()
	h := func(_ context.Context, c createThing) (string, error) { return "", nil }
	Register(b, h)

	require.Panics(t, func() { Register(b, h) })
}
