package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// MediaUpdate is one entry of a Jellyfin media-updated batch. UpdateType is
// Created, Modified or Deleted.
type MediaUpdate struct {
	Path       string `json:"Path"`
	UpdateType string `json:"UpdateType"`
}

// Jellyfin reports path-level media changes to a Jellyfin server.
type Jellyfin struct {
	base    *url.URL
	apiKey  string
	session *httpc.Session
	logger  *slog.Logger
}

var epJellyfinMediaUpdated = httpc.Endpoint{Method: "POST", Path: "/Library/Media/Updated"}

func NewJellyfin(rawURL, apiKey string, session *httpc.Session, logger *slog.Logger) (*Jellyfin, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: jellyfin: %w", err)
	}

	return &Jellyfin{
		base:    base,
		apiKey:  strings.TrimSpace(apiKey),
		session: session,
		logger:  logger,
	}, nil
}

// MediaUpdated reports one batch of changes in a single call.
func (j *Jellyfin) MediaUpdated(ctx context.Context, updates []MediaUpdate) *httpc.Response {
	call := httpc.Call{
		JSON: map[string]any{"Updates": updates},
		Headers: http.Header{
			"Authorization": {"MediaBrowser Token=" + j.apiKey},
			"Content-Type":  {"application/json"},
		},
	}

	resp := j.session.Do(ctx, j.base, epJellyfinMediaUpdated, call)
	j.logger.Info("jellyfin media updated",
		slog.Int("updates", len(updates)),
		slog.Int("status", resp.StatusCode),
	)

	return resp
}
