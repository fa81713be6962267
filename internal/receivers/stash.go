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

// Stash runs library maintenance mutations against a Stash server's GraphQL
// endpoint. Authentication is the static ApiKey header.
type Stash struct {
	base    *url.URL
	apiKey  string
	session *httpc.Session
	logger  *slog.Logger
}

var epStashGraphQL = httpc.Endpoint{Method: "POST", Path: "/graphql"}

func NewStash(rawURL, apiKey string, session *httpc.Session, logger *slog.Logger) (*Stash, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: stash: %w", err)
	}

	return &Stash{
		base:    base,
		apiKey:  strings.TrimSpace(apiKey),
		session: session,
		logger:  logger,
	}, nil
}

func (s *Stash) graphql(ctx context.Context, payload map[string]any) *httpc.Response {
	call := httpc.Call{
		JSON: payload,
		Headers: http.Header{
			"ApiKey":       {s.apiKey},
			"Content-Type": {"application/json"},
		},
	}

	return s.session.Do(ctx, s.base, epStashGraphQL, call)
}

// MetadataScan scans the given paths for new or changed content. Generation
// options beyond covers stay off; the scheduled maintenance jobs own those.
func (s *Stash) MetadataScan(ctx context.Context, paths []string) *httpc.Response {
	resp := s.graphql(ctx, map[string]any{
		"operationName": "MetadataScan",
		"variables": map[string]any{
			"input": map[string]any{
				"rescan":                    false,
				"scanGenerateClipPreviews":  false,
				"scanGenerateCovers":        true,
				"scanGenerateImagePreviews": false,
				"scanGeneratePhashes":       false,
				"scanGeneratePreviews":      false,
				"scanGenerateSprites":       false,
				"scanGenerateThumbnails":    false,
				"paths":                     paths,
			},
		},
		"query": "mutation MetadataScan($input: ScanMetadataInput!){metadataScan(input: $input)}",
	})
	s.logger.Info("stash metadata scan",
		slog.Int("paths", len(paths)),
		slog.Int("status", resp.StatusCode),
	)

	return resp
}

// MetadataClean removes entries under the given paths that no longer exist
// on disk.
func (s *Stash) MetadataClean(ctx context.Context, paths []string, dryRun bool) *httpc.Response {
	resp := s.graphql(ctx, map[string]any{
		"operationName": "MetadataClean",
		"variables": map[string]any{
			"input": map[string]any{
				"paths":  paths,
				"dryRun": dryRun,
			},
		},
		"query": "mutation MetadataClean($input: CleanMetadataInput!){metadataClean(input: $input)}",
	})
	s.logger.Info("stash metadata clean",
		slog.Int("paths", len(paths)),
		slog.Bool("dry_run", dryRun),
		slog.Int("status", resp.StatusCode),
	)

	return resp
}
