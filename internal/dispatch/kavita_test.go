package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

type kavitaServer struct {
	*httptest.Server
	authCalls int
	scans     []string
	statuses  []int
}

func newKavitaServer(t *testing.T) *kavitaServer {
	t.Helper()

	ks := &kavitaServer{}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Plugin/authenticate":
			ks.authCalls++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"token": "jwt", "refreshToken": "r"})

		case "/api/Library/scan-folder":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			folder, _ := body["folderPath"].(string)
			ks.scans = append(ks.scans, folder)

			status := http.StatusOK
			if len(ks.statuses) > 0 {
				status = ks.statuses[0]
				ks.statuses = ks.statuses[1:]
			}

			w.WriteHeader(status)
		}
	}))

	return ks
}

func TestKavitaCoalescesSiblingsIntoOneScan(t *testing.T) {
	srv := newKavitaServer(t)
	defer srv.Close()

	k, err := NewKavita(srv.URL, "key", []string{"/MOVIES:/comics"}, 30*time.Second,
		httpc.NewSession(nil, discardLogger()), discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		require.NoError(t, k.Dispatch(ctx, testEvent("/MOVIES/series/"+name+".cbz", "create", false)))
	}

	k.flushTick(ctx)

	// Files under one parent collapse into a single scan of the mapped parent.
	assert.Equal(t, []string{"/comics/series"}, srv.scans)
}

func TestKavitaReauthenticatesOn401(t *testing.T) {
	srv := newKavitaServer(t)
	defer srv.Close()

	srv.statuses = []int{http.StatusUnauthorized, http.StatusOK}

	k, err := NewKavita(srv.URL, "key", nil, 30*time.Second,
		httpc.NewSession(nil, discardLogger()), discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, k.Dispatch(ctx, testEvent("/comics/series/a.cbz", "create", false)))

	k.flushTick(ctx)

	// One 401, one re-authentication, one successful retry, no more.
	assert.Equal(t, 1, srv.authCalls)
	assert.Len(t, srv.scans, 2)
}

func TestKavitaScansEachFolderWhenNoFiles(t *testing.T) {
	srv := newKavitaServer(t)
	defer srv.Close()

	k, err := NewKavita(srv.URL, "key", nil, 30*time.Second,
		httpc.NewSession(nil, discardLogger()), discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, k.Dispatch(ctx, testEvent("/comics/s1", "create", true)))
	require.NoError(t, k.Dispatch(ctx, testEvent("/comics/s2", "create", true)))

	k.flushTick(ctx)

	assert.Equal(t, []string{"/comics/s1", "/comics/s2"}, srv.scans)
}
