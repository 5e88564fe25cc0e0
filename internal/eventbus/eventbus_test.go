package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_DrainBeforeCommit_RunsInline(t *testing.T) {
	bus := New(zerolog.Nop(), 2)
	var got []string
	bus.Subscribe(BeforeCommit, "Foo", func(ctx context.Context, ev Event) error {
		got = append(got, ev.Data.(string))
		return nil
	})

	c := bus.NewCollector()
	c.Raise(Event{Type: "Foo", Data: "a"})
	c.Raise(Event{Type: "Foo", Data: "b"})
	c.Raise(Event{Type: "Bar", Data: "ignored"})

	require.NoError(t, c.DrainBeforeCommit(context.Background()))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCollector_DrainBeforeCommit_StopsOnFirstError(t *testing.T) {
	bus := New(zerolog.Nop(), 2)
	boom := errors.New("boom")
	calls := 0
	bus.Subscribe(BeforeCommit, "Foo", func(ctx context.Context, ev Event) error {
		calls++
		return boom
	})
	bus.Subscribe(BeforeCommit, "Foo", func(ctx context.Context, ev Event) error {
		calls++
		return nil
	})

	c := bus.NewCollector()
	c.Raise(Event{Type: "Foo"})

	err := c.DrainBeforeCommit(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestCollector_DrainAfterCommit_DispatchesAsync(t *testing.T) {
	bus := New(zerolog.Nop(), 2)
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	bus.Subscribe(AfterCommit, "Foo", func(ctx context.Context, ev Event) error {
		mu.Lock()
		got = append(got, ev.Data.(string))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	c := bus.NewCollector()
	c.Raise(Event{Type: "Foo", Data: "async"})
	c.DrainAfterCommit(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("after-commit handler never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"async"}, got)
}

func TestCollector_DrainAfterCommit_RecoversPanics(t *testing.T) {
	bus := New(zerolog.Nop(), 1)
	done := make(chan struct{}, 1)
	bus.Subscribe(AfterCommit, "Foo", func(ctx context.Context, ev Event) error {
		defer func() { done <- struct{}{} }()
		panic("handler exploded")
	})

	c := bus.NewCollector()
	c.Raise(Event{Type: "Foo"})
	c.DrainAfterCommit(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking handler never ran to completion")
	}
	// Pool must still accept further work after a recovered panic.
	c2 := bus.NewCollector()
	calls := 0
	var mu sync.Mutex
	bus.Subscribe(AfterCommit, "Bar", func(ctx context.Context, ev Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	c2.Raise(Event{Type: "Bar"})
	c2.DrainAfterCommit(context.Background())
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
