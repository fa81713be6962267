package dispatch

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// plexmateInfoExtensions trigger a REFRESH scan instead of ADD. Unlike the
// GDS broadcast set, .nfo is handled by plex_mate itself.
var plexmateInfoExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Plexmate queues scans on a Flaskfarm plex_mate plugin, one per event.
type Plexmate struct {
	base
	client *receivers.Flaskfarm
}

func NewPlexmate(url, apiKey string, mappings []string, session *httpc.Session, logger *slog.Logger) (*Plexmate, error) {
	b, err := newBase("PlexmateDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewFlaskfarm(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	return &Plexmate{base: b, client: client}, nil
}

func (p *Plexmate) Dispatch(ctx context.Context, event *activity.Event) error {
	removeMode := ModeRemoveFile
	if event.IsFolder {
		removeMode = ModeRemoveFolder
	}

	target := p.mapPath(event.Path)

	mode := ModeAdd
	switch {
	case plexmateInfoExtensions[strings.ToLower(path.Ext(target))]:
		mode = ModeRefresh
	case event.Action == activity.ActionDelete:
		mode = removeMode
	}

	targets := []scanTarget{{path: target, mode: mode}}

	if event.RemovedPath != "" {
		targets = append(targets, scanTarget{
			path: p.mapPath(event.RemovedPath),
			mode: removeMode,
		})
	}

	for _, t := range targets {
		resp := p.client.PlexMateScan(ctx, t.path, t.mode)
		if !resp.OK() {
			p.logger.Warn("plex_mate scan returned non-2xx",
				slog.Int("status", resp.StatusCode),
				slog.String("target", t.path),
			)
		}
	}

	return nil
}
