package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(p, action string, isFolder bool) *activity.Event {
	return &activity.Event{
		Raw:      json.RawMessage(`{"path":"` + p + `","action":"` + action + `"}`),
		Path:     p,
		Action:   action,
		IsFolder: isFolder,
		Target:   activity.Target{Title: "title", Name: "items/ID", MimeType: "video/x-matroska"},
	}
}

func TestFolderBufferOrder(t *testing.T) {
	buffer := NewFolderBuffer()
	buffer.Add("/a", testEvent("/a/1", "create", false))
	buffer.Add("/b", testEvent("/b/1", "create", false))
	buffer.Add("/a", testEvent("/a/2", "create", false))

	assert.Equal(t, 2, buffer.Len())

	parent, events, ok := buffer.PopOldest()
	require.True(t, ok)
	assert.Equal(t, "/a", parent)
	assert.Len(t, events, 2)

	parent, _, ok = buffer.PopOldest()
	require.True(t, ok)
	assert.Equal(t, "/b", parent)

	_, _, ok = buffer.PopOldest()
	assert.False(t, ok)
}

func TestBufferedDispatchSplitsMove(t *testing.T) {
	var flushed []*activity.Event

	b, err := newBase("test", nil, discardLogger())
	require.NoError(t, err)

	d := newBuffered(b, time.Second, func(_ context.Context, _ string, events []*activity.Event) error {
		flushed = append(flushed, events...)
		return nil
	})

	move := testEvent("/MOVIES/new/m.mkv", "move", false)
	move.RemovedPath = "/MOVIES/old/m.mkv"

	require.NoError(t, d.Dispatch(context.Background(), move))

	// Two parents buffered: the destination and the source.
	assert.Equal(t, 2, d.buffer.Len())

	d.flushTick(context.Background())
	require.Len(t, flushed, 2)

	assert.Equal(t, "move", flushed[0].Action)
	assert.Equal(t, "/MOVIES/new/m.mkv", flushed[0].Path)
	assert.Empty(t, flushed[0].RemovedPath)

	assert.Equal(t, "delete", flushed[1].Action)
	assert.Equal(t, "/MOVIES/old/m.mkv", flushed[1].Path)
	assert.Empty(t, flushed[1].RemovedPath)

	// The caller's event is not mutated.
	assert.Equal(t, "/MOVIES/old/m.mkv", move.RemovedPath)
}

func TestBufferedFlushSwallowsErrors(t *testing.T) {
	calls := 0

	b, err := newBase("test", nil, discardLogger())
	require.NoError(t, err)

	d := newBuffered(b, time.Second, func(_ context.Context, parent string, _ []*activity.Event) error {
		calls++
		if parent == "/bad" {
			return assert.AnError
		}

		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), testEvent("/bad/x", "create", false)))
	require.NoError(t, d.Dispatch(context.Background(), testEvent("/good/y", "create", false)))

	d.flushTick(context.Background())

	// The failing parent does not stop the next one.
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, d.buffer.Len())
}

func TestBufferIdempotence(t *testing.T) {
	var outputs [][]*activity.Event

	b, err := newBase("test", nil, discardLogger())
	require.NoError(t, err)

	d := newBuffered(b, time.Second, func(_ context.Context, _ string, events []*activity.Event) error {
		outputs = append(outputs, lastPerPath(events))
		return nil
	})

	event := testEvent("/a/x", "create", false)
	require.NoError(t, d.Dispatch(context.Background(), event))
	require.NoError(t, d.Dispatch(context.Background(), event))

	d.flushTick(context.Background())

	require.Len(t, outputs, 1)
	require.Len(t, outputs[0], 1)
	assert.True(t, outputs[0][0].Equal(event))
}

func TestBufferedRunStopsOnCancel(t *testing.T) {
	b, err := newBase("test", nil, discardLogger())
	require.NoError(t, err)

	d := newBuffered(b, time.Hour, func(context.Context, string, []*activity.Event) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("flush loop did not stop on cancellation")
	}
}

func TestLastPerPath(t *testing.T) {
	first := testEvent("/a/x", "create", false)
	second := testEvent("/a/x", "edit", false)
	other := testEvent("/a/y", "create", false)

	out := lastPerPath([]*activity.Event{first, other, second})
	require.Len(t, out, 2)
	assert.Equal(t, "edit", out[0].Action)
	assert.Equal(t, "/a/y", out[1].Path)
}
