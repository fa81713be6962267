package poller

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
	"github.com/tonimelisma/gdpoller-go/internal/dispatch"
	"github.com/tonimelisma/gdpoller-go/internal/gdrive"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type queryResult struct {
	resp *gdrive.QueryResponse
	err  error
}

type fakeQuerier struct {
	responses []queryResult
	calls     []gdrive.QueryRequest
}

func (f *fakeQuerier) QueryActivities(_ context.Context, req *gdrive.QueryRequest) (*gdrive.QueryResponse, error) {
	f.calls = append(f.calls, *req)

	if len(f.responses) == 0 {
		return &gdrive.QueryResponse{}, nil
	}

	next := f.responses[0]
	f.responses = f.responses[1:]

	return next.resp, next.err
}

type fakeResolver struct {
	paths map[string]*gdrive.Resolved
}

func (f *fakeResolver) Resolve(_ context.Context, itemID, _, _ string) (*gdrive.Resolved, bool) {
	resolved, ok := f.paths[itemID]

	return resolved, ok
}

type capture struct {
	name   string
	events []*activity.Event
	panics bool
}

func (c *capture) Name() string { return c.name }

func (c *capture) Dispatch(_ context.Context, event *activity.Event) error {
	if c.panics {
		panic("boom")
	}

	c.events = append(c.events, event.Clone())

	return nil
}

func newTestPoller(t *testing.T, querier ActivityQuerier, resolver PathResolver,
	dispatchers ...dispatch.Dispatcher) *Poller {
	t.Helper()

	p, err := New(Options{
		Name:             "poller-0",
		Targets:          []Target{{ID: "AID", RootLabel: "MOVIES"}},
		Dispatchers:      dispatchers,
		PollingInterval:  time.Minute,
		DispatchInterval: time.Second,
		PageSize:         100,
		IgnoreFolder:     true,
		Querier:          querier,
		Resolver:         resolver,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	return p
}

func rawActivity(t *testing.T, ts string, detail, target map[string]any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"timestamp":           ts,
		"primaryActionDetail": detail,
		"targets":             []any{map[string]any{"driveItem": target}},
	})
	require.NoError(t, err)

	return raw
}

func fileTarget(title, id string) map[string]any {
	return map[string]any{"title": title, "name": "items/" + id, "mimeType": "video/x-matroska"}
}

func TestQueueOrdersByTimestampThenArrival(t *testing.T) {
	q := NewQueue()

	mk := func(ts string, tag string) *activity.Event {
		parsed, err := time.Parse(time.RFC3339, ts)
		require.NoError(t, err)

		return &activity.Event{Raw: json.RawMessage(tag), Timestamp: parsed}
	}

	q.Push(mk("2024-01-01T00:00:02Z", `"b"`))
	q.Push(mk("2024-01-01T00:00:01Z", `"a1"`))
	q.Push(mk("2024-01-01T00:00:01Z", `"a2"`))

	var order []string
	for {
		event, ok := q.Pop()
		if !ok {
			break
		}

		order = append(order, string(event.Raw))
	}

	assert.Equal(t, []string{`"a1"`, `"a2"`, `"b"`}, order)
	assert.Equal(t, 0, q.Len())
}

func TestParseTargetRoundTrip(t *testing.T) {
	labelled, err := ParseTarget("AID#MOVIES")
	require.NoError(t, err)
	assert.Equal(t, Target{ID: "AID", RootLabel: "MOVIES"}, labelled)
	assert.Equal(t, "AID#MOVIES", labelled.String())

	bare, err := ParseTarget("AID")
	require.NoError(t, err)
	assert.Equal(t, "AID", bare.String())

	_, err = ParseTarget("#label")
	assert.Error(t, err)
}

func TestPollTargetAdvancesWatermarkAndPaginates(t *testing.T) {
	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	querier := &fakeQuerier{responses: []queryResult{
		{resp: &gdrive.QueryResponse{Activities: []json.RawMessage{raw}, NextPageToken: "page2"}},
		{resp: &gdrive.QueryResponse{Activities: []json.RawMessage{raw}}},
	}}

	p := newTestPoller(t, querier, &fakeResolver{})

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	state := p.states[0]
	before := state.watermark()

	p.pollTarget(context.Background(), state)

	require.Len(t, querier.calls, 2)
	assert.Equal(t, "items/AID", querier.calls[0].AncestorName)
	assert.Empty(t, querier.calls[0].PageToken)
	assert.Equal(t, "page2", querier.calls[1].PageToken)
	assert.Contains(t, querier.calls[0].Filter, "time > ")
	assert.Contains(t, querier.calls[0].Filter, " AND time <= ")

	assert.Equal(t, now, state.watermark())
	assert.True(t, state.watermark().After(before))
	assert.Equal(t, 2, p.QueueDepth())

	event, ok := p.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, "AID", event.Ancestor)
	assert.Equal(t, "MOVIES", event.RootLabel)
	assert.Equal(t, "poller-0", event.Poller)
}

func TestPollTargetTransportErrorPreservesWatermark(t *testing.T) {
	querier := &fakeQuerier{responses: []queryResult{
		{err: &gdrive.APIError{StatusCode: 500, URL: "x"}},
	}}

	p := newTestPoller(t, querier, &fakeResolver{})

	state := p.states[0]
	before := state.watermark()

	p.pollTarget(context.Background(), state)

	assert.Equal(t, before, state.watermark())
	assert.Equal(t, 0, p.QueueDepth())
}

func TestPollTargetSilenceReport(t *testing.T) {
	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{})
	p.taskCheckInterval = time.Minute

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	state := p.states[0]
	state.lastSilence = now.Add(-2 * time.Minute)

	p.pollTarget(context.Background(), state)

	assert.Equal(t, now, state.lastSilence)
}

func TestDispatchSingleCreate(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID": {Path: "/MOVIES/dir/m.mkv", Parent: activity.Parent{Name: "dir", ID: "DID"}},
	}}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)
	event.Ancestor = "AID"
	event.RootLabel = "MOVIES"

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
	got := sink.events[0]
	assert.Equal(t, "create", got.Action)
	assert.Equal(t, "/MOVIES/dir/m.mkv", got.Path)
	assert.False(t, got.IsFolder)
	assert.Equal(t, "https://drive.google.com/drive/folders/DID", got.Link)
	assert.NotEmpty(t, got.TimestampText)
}

func TestDispatchMoveResolvesRemovedPath(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID":  {Path: "/MOVIES/new/m.mkv", Parent: activity.Parent{Name: "new", ID: "NID"}},
		"OPID": {Path: "/MOVIES/old", Parent: activity.Parent{Name: "MOVIES", ID: "AID"}},
	}}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"move": map[string]any{
			"removedParents": []any{map[string]any{"driveItem": map[string]any{
				"title": "old", "name": "items/OPID",
				"mimeType": activity.MimeFolder,
			}}},
		}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "/MOVIES/new/m.mkv", sink.events[0].Path)
	assert.Equal(t, "/MOVIES/old/m.mkv", sink.events[0].RemovedPath)
}

func TestDispatchRenameDerivesRemovedPath(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID": {Path: "/MOVIES/dir/new.mkv", Parent: activity.Parent{Name: "dir", ID: "DID"}},
	}}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"rename": map[string]any{"oldTitle": "old.mkv"}},
		fileTarget("new.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "/MOVIES/dir/old.mkv", sink.events[0].RemovedPath)
}

func TestDispatchDropsPermanentDelete(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"delete": map[string]any{"type": "PERMANENT_DELETE"}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	assert.Empty(t, sink.events)
}

func TestDispatchDropsIgnoredFolder(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"DID": {Path: "/MOVIES/dir"},
	}}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		map[string]any{"title": "dir", "name": "items/DID", "mimeType": activity.MimeFolder})

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	assert.Empty(t, sink.events)
}

func TestDispatchUnresolvedFallsBackToUnknown(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{}, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "/unknown/m.mkv", sink.events[0].Path)
}

func TestDispatchReconcilesFilteredMoveIntoDelete(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID":  {Path: "/OTHER/new/m.mkv", Parent: activity.Parent{Name: "new", ID: "NID"}},
		"OPID": {Path: "/MOVIES/old", Parent: activity.Parent{Name: "MOVIES", ID: "AID"}},
	}}, sink)

	compiled, err := compilePatterns([]string{"^/MOVIES/"})
	require.NoError(t, err)
	p.patterns = compiled

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"move": map[string]any{
			"removedParents": []any{map[string]any{"driveItem": map[string]any{
				"title": "old", "name": "items/OPID",
				"mimeType": activity.MimeFolder,
			}}},
		}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
	got := sink.events[0]
	assert.Equal(t, activity.ActionDelete, got.Action)
	assert.Equal(t, "/MOVIES/old/m.mkv", got.Path)
	assert.Empty(t, got.RemovedPath)
	assert.Equal(t, "https://drive.google.com/drive/folders/OPID", got.Link)
	assert.Equal(t, "Moved but can not access: items/FID", got.Detail)
}

func TestDispatchDropsWhenNeitherPathSurvives(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID": {Path: "/OTHER/m.mkv"},
	}}, sink)

	compiled, err := compilePatterns([]string{"^/MOVIES/"})
	require.NoError(t, err)
	p.patterns = compiled

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	assert.Empty(t, sink.events)
}

func TestDispatchPanicDoesNotSkipRemainingDispatchers(t *testing.T) {
	broken := &capture{name: "broken", panics: true}
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID": {Path: "/MOVIES/m.mkv", Parent: activity.Parent{Name: "MOVIES", ID: "AID"}},
	}}, broken, sink)

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	require.Len(t, sink.events, 1)
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{})
	s := NewSupervisor([]*Poller{p}, 0, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancellation")
	}
}

func TestDispatchActionFilter(t *testing.T) {
	sink := &capture{name: "dummy"}

	p := newTestPoller(t, &fakeQuerier{}, &fakeResolver{paths: map[string]*gdrive.Resolved{
		"FID": {Path: "/MOVIES/m.mkv"},
	}}, sink)
	p.actions = map[string]bool{"delete": true}

	raw := rawActivity(t, "2024-01-01T00:00:00Z",
		map[string]any{"create": map[string]any{"new": map[string]any{}}},
		fileTarget("m.mkv", "FID"))

	event, err := activity.FromRaw(raw)
	require.NoError(t, err)

	p.dispatchEvent(context.Background(), event)

	assert.Empty(t, sink.events)
}
