package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// Jellyfin coalesces sibling events into one media-updated batch. Folder
// events are skipped; Jellyfin discovers directory structure itself.
type Jellyfin struct {
	buffered
	client *receivers.Jellyfin
}

func NewJellyfin(url, apiKey string, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*Jellyfin, error) {
	b, err := newBase("JellyfinDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewJellyfin(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	j := &Jellyfin{client: client}
	j.buffered = newBuffered(b, interval, j.flushParent)

	return j, nil
}

func (j *Jellyfin) flushParent(ctx context.Context, parent string, events []*activity.Event) error {
	var updates []receivers.MediaUpdate

	for _, event := range lastPerPath(events) {
		if event.IsFolder {
			j.logger.Warn("skipped folder",
				slog.String("name", event.Target.Title),
			)

			continue
		}

		var updateType string

		switch event.Action {
		case activity.ActionDelete:
			updateType = "Deleted"
		case activity.ActionCreate, activity.ActionMove:
			updateType = "Created"
		case activity.ActionEdit:
			updateType = "Modified"
		default:
			j.logger.Warn("unsupported action",
				slog.String("action", event.Action),
			)

			continue
		}

		updates = append(updates, receivers.MediaUpdate{
			Path:       j.mapPath(event.Path),
			UpdateType: updateType,
		})
	}

	if len(updates) == 0 {
		j.logger.Info("no updates to send", slog.String("parent", parent))

		return nil
	}

	j.client.MediaUpdated(ctx, updates)

	return nil
}
