package dispatch

import (
	"context"
	"log/slog"
	"path"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// Plex scans the library directory containing each event. Files scan their
// parent directory; a move additionally scans the directory the item left.
type Plex struct {
	base
	client *receivers.Plex
}

func NewPlex(url, token string, mappings []string, session *httpc.Session, logger *slog.Logger) (*Plex, error) {
	b, err := newBase("PlexDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewPlex(url, token, session, logger)
	if err != nil {
		return nil, err
	}

	return &Plex{base: b, client: client}, nil
}

func (p *Plex) Dispatch(ctx context.Context, event *activity.Event) error {
	targets := make([]string, 0, 2)
	seen := make(map[string]bool, 2)

	add := func(target string) {
		if !event.IsFolder {
			target = path.Dir(target)
		}

		if !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
	}

	add(p.mapPath(event.Path))

	if event.RemovedPath != "" {
		add(p.mapPath(event.RemovedPath))
	}

	for _, target := range targets {
		p.client.Scan(ctx, target, false, true)
	}

	return nil
}
