package dispatch

import (
	"context"
	"log/slog"
	"path"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// Rclone keeps a remote VFS cache coherent: deletes are forgotten, anything
// else forgets and refreshes the containing directory.
type Rclone struct {
	base
	client *receivers.Rclone
}

func NewRclone(url string, mappings []string, session *httpc.Session, logger *slog.Logger) (*Rclone, error) {
	b, err := newBase("RcloneDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewRclone(url, session, logger)
	if err != nil {
		return nil, err
	}

	return &Rclone{base: b, client: client}, nil
}

func (r *Rclone) Dispatch(ctx context.Context, event *activity.Event) error {
	remote := r.mapPath(event.Path)

	if event.Action == activity.ActionDelete {
		r.client.Forget(ctx, remote, event.IsFolder)

		return nil
	}

	if event.RemovedPath != "" {
		r.client.Forget(ctx, r.mapPath(event.RemovedPath), event.IsFolder)
	}

	dir := remote
	if !event.IsFolder {
		dir = path.Dir(remote)
	}

	r.client.Forget(ctx, dir, true)
	r.client.RefreshWalk(ctx, dir, false)

	return nil
}
