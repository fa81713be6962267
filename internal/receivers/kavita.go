package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// pluginName identifies this client to Kavita's plugin authentication.
const pluginName = "GDPoller"

// Kavita scans library folders on a Kavita server. Plugin authentication
// exchanges the static api key for a short-lived JWT carried as a Bearer
// header; dispatchers re-authenticate on 401.
type Kavita struct {
	base    *url.URL
	apiKey  string
	session *httpc.Session
	logger  *slog.Logger

	mu           sync.Mutex
	token        string
	refreshToken string
}

var (
	epKavitaAuthenticate = httpc.Endpoint{Method: "POST", Path: "/api/Plugin/authenticate"}
	epKavitaScanFolder   = httpc.Endpoint{Method: "POST", Path: "/api/Library/scan-folder"}
)

func NewKavita(rawURL, apiKey string, session *httpc.Session, logger *slog.Logger) (*Kavita, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: kavita: %w", err)
	}

	return &Kavita{
		base:    base,
		apiKey:  strings.TrimSpace(apiKey),
		session: session,
		logger:  logger,
	}, nil
}

// adjust sets the JSON content negotiation headers and the Bearer token when
// one has been acquired.
func (k *Kavita) adjust(call *httpc.Call) {
	headers := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json, */*"},
	}

	k.mu.Lock()
	if k.token != "" {
		headers.Set("Authorization", "Bearer "+k.token)
	}
	k.mu.Unlock()

	call.Headers = headers
}

// Authenticate exchanges the api key for a fresh token pair.
func (k *Kavita) Authenticate(ctx context.Context) error {
	call := httpc.Call{
		Params: url.Values{"pluginName": {pluginName}, "apiKey": {k.apiKey}},
	}
	k.adjust(&call)

	resp := k.session.Do(ctx, k.base, epKavitaAuthenticate, call)
	if !resp.OK() {
		k.logger.Error("kavita authentication failed",
			slog.Int("status", resp.StatusCode),
			slog.String("content", resp.Content),
		)

		return fmt.Errorf("receivers: kavita authenticate returned %d", resp.StatusCode)
	}

	token, _ := resp.JSON["token"].(string)
	refresh, _ := resp.JSON["refreshToken"].(string)

	k.mu.Lock()
	k.token = token
	k.refreshToken = refresh
	k.mu.Unlock()

	return nil
}

// ScanFolder asks the server to scan one library folder and returns the
// HTTP status (0 on transport failure).
func (k *Kavita) ScanFolder(ctx context.Context, folder string) int {
	call := httpc.Call{
		JSON: map[string]any{"folderPath": folder, "apiKey": k.apiKey},
	}
	k.adjust(&call)

	resp := k.session.Do(ctx, k.base, epKavitaScanFolder, call)
	k.logger.Info("kavita scan",
		slog.String("folder", folder),
		slog.Int("status", resp.StatusCode),
	)

	return resp.StatusCode
}
