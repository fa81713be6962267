package dispatch

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

// Dummy logs every event and performs no side effects. It is the default
// dispatcher when a poller declares none.
type Dummy struct {
	base
}

func NewDummy(mappings []string, logger *slog.Logger) (*Dummy, error) {
	b, err := newBase("DummyDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	return &Dummy{base: b}, nil
}

func (d *Dummy) Dispatch(_ context.Context, event *activity.Event) error {
	d.logger.Info("dummy dispatch",
		slog.String("action", event.Action),
		slog.String("path", d.mapPath(event.Path)),
		slog.String("removed_path", event.RemovedPath),
		slog.Bool("is_folder", event.IsFolder),
		slog.String("link", event.Link),
		slog.Time("timestamp", event.Timestamp),
	)

	return nil
}
