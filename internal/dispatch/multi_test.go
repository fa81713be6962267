package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// recorder collects which receiver group each request hit, in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, group)
}

func (r *recorder) groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func TestMultiServerPhaseOrdering(t *testing.T) {
	rec := &recorder{}

	rcloneSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add("rclone")
		w.Header().Set("Content-Type", "application/json")

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		dir, _ := body["dir"].(string)
		if dir == "" {
			dir = "/"
		}

		json.NewEncoder(w).Encode(map[string]any{"result": map[string]string{dir: "ok", "": "ok"}})
	}))
	defer rcloneSrv.Close()

	plexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add("plex")

		if r.URL.Path == "/library/sections" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"MediaContainer": map[string]any{
					"Directory": []any{
						map[string]any{
							"key":      "1",
							"Location": []any{map[string]any{"path": "/media"}},
						},
					},
				},
			})

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer plexSrv.Close()

	session := httpc.NewSession(nil, discardLogger())

	m, err := NewMultiServer(
		[]ServerConfig{{URL: rcloneSrv.URL}},
		[]ServerConfig{{URL: plexSrv.URL, Token: "tok"}},
		nil, nil, nil,
		nil, 30*time.Second, session, discardLogger(),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Dispatch(ctx, testEvent("/media/show/e01.mkv", "create", false)))
	require.NoError(t, m.Dispatch(ctx, testEvent("/media/show/e02.mkv", "create", false)))

	m.flushTick(ctx)

	groups := rec.groups()
	require.NotEmpty(t, groups)

	// Every rclone call lands before the first plex call.
	firstPlex := len(groups)
	for i, g := range groups {
		if g == "plex" {
			firstPlex = i
			break
		}
	}

	for _, g := range groups[firstPlex:] {
		assert.Equal(t, "plex", g)
	}

	assert.Contains(t, groups, "rclone")
	assert.Contains(t, groups, "plex")
}

func TestMultiServerCollapsesMixedDeletes(t *testing.T) {
	var forgets []map[string]any

	rcloneSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		if r.URL.Path == "/vfs/forget" {
			forgets = append(forgets, body)
		}

		w.Header().Set("Content-Type", "application/json")

		dir, _ := body["dir"].(string)
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]string{dir: "ok", "": "ok"}})
	}))
	defer rcloneSrv.Close()

	m, err := NewMultiServer(
		[]ServerConfig{{URL: rcloneSrv.URL}},
		nil, nil, nil, nil,
		nil, 30*time.Second, httpc.NewSession(nil, discardLogger()), discardLogger(),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Dispatch(ctx, testEvent("/media/show/e01.mkv", "delete", false)))
	require.NoError(t, m.Dispatch(ctx, testEvent("/media/show/extras", "delete", true)))

	m.flushTick(ctx)

	// A file delete plus another delete collapse into one forget of the
	// parent as a directory, then the parent refresh forget.
	require.NotEmpty(t, forgets)
	assert.Equal(t, "/media/show", forgets[0]["dir"])
}
