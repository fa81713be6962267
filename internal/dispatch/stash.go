package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// Stash coalesces sibling events into metadata mutations on the parent
// directory: a clean when anything was deleted, a scan when anything else
// changed. Folder events are skipped.
type Stash struct {
	buffered
	client *receivers.Stash
}

func NewStash(url, apiKey string, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*Stash, error) {
	b, err := newBase("StashDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewStash(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	s := &Stash{client: client}
	s.buffered = newBuffered(b, interval, s.flushParent)

	return s, nil
}

func (s *Stash) flushParent(ctx context.Context, parent string, events []*activity.Event) error {
	deletes := 0
	updates := 0

	for _, event := range lastPerPath(events) {
		if event.IsFolder {
			s.logger.Warn("skipped folder",
				slog.String("name", event.Target.Title),
			)

			continue
		}

		if event.Action == activity.ActionDelete {
			deletes++
		} else {
			updates++
		}
	}

	mapped := s.mapPath(parent)

	if deletes > 0 {
		s.client.MetadataClean(ctx, []string{mapped}, false)
	}

	if updates > 0 {
		s.client.MetadataScan(ctx, []string{mapped})
	}

	return nil
}
