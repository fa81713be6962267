package dispatch

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// Scan modes understood by the GDS-style receivers.
const (
	ModeAdd          = "ADD"
	ModeRefresh      = "REFRESH"
	ModeRemoveFile   = "REMOVE_FILE"
	ModeRemoveFolder = "REMOVE_FOLDER"
)

// broadcastActions are the only action kinds a GDS broadcast reacts to.
var broadcastActions = map[string]bool{
	activity.ActionCreate:  true,
	activity.ActionMove:    true,
	activity.ActionRename:  true,
	activity.ActionRestore: true,
	activity.ActionDelete:  true,
}

// infoExtensions mark sidecar metadata files; their changes trigger REFRESH
// instead of ADD and their deletions are ignored.
var infoExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
	".nfo":  true,
}

// scanTarget is one (path, mode) broadcast to emit for a flushed parent.
type scanTarget struct {
	path string
	mode string
}

// broadcastFunc sends one scan target to a concrete GDS-style receiver.
type broadcastFunc func(ctx context.Context, target, mode string) error

// gdsBroadcast is the buffered core shared by GDSToolDispatcher and
// FlaskfarmaiderDispatcher: partition a flushed parent's children into
// deletes, files, folders and info files, then broadcast per the collapse
// rules.
type gdsBroadcast struct {
	buffered
	send broadcastFunc
}

func newGDSBroadcast(b base, interval time.Duration, send broadcastFunc) *gdsBroadcast {
	g := &gdsBroadcast{send: send}
	g.buffered = newBuffered(b, interval, g.flushParent)

	return g
}

func (g *gdsBroadcast) flushParent(ctx context.Context, parent string, events []*activity.Event) error {
	for _, target := range partitionBroadcasts(parent, events, g.logger) {
		if err := g.send(ctx, g.mapPath(target.path), target.mode); err != nil {
			g.logger.Error("broadcast failed",
				slog.String("target", target.path),
				slog.String("mode", target.mode),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// partitionBroadcasts reduces a parent's events to the scan targets to emit.
// The last event per path wins. Delete collapse: one file delete among more
// than one delete total becomes a single REMOVE_FOLDER on the parent, since
// a folder delete may never surface activities for its children. Among
// non-deletes only the first of files, folders, then info files is
// broadcast; siblings are covered by the same scan.
func partitionBroadcasts(parent string, events []*activity.Event, logger *slog.Logger) []scanTarget {
	var (
		fileDeletes   []*activity.Event
		folderDeletes []*activity.Event
		files         []*activity.Event
		folders       []*activity.Event
		infoFiles     []*activity.Event
	)

	for _, event := range lastPerPath(events) {
		if !broadcastActions[event.Action] {
			logger.Warn("no applicable action",
				slog.String("action", event.Action),
				slog.String("parent", parent),
			)

			continue
		}

		if event.Action == activity.ActionCreate && event.IsFolder {
			logger.Warn("skipped folder creation",
				slog.String("name", event.Target.Title),
			)

			continue
		}

		info := infoExtensions[strings.ToLower(path.Ext(event.Path))]

		switch {
		case event.Action == activity.ActionDelete:
			if info {
				logger.Debug("ignored info file deletion",
					slog.String("name", path.Base(event.Path)),
					slog.String("parent", parent),
				)
			} else if event.IsFolder {
				folderDeletes = append(folderDeletes, event)
			} else {
				fileDeletes = append(fileDeletes, event)
			}

		case !event.IsFolder && info:
			infoFiles = append(infoFiles, event)

		case event.IsFolder:
			folders = append(folders, event)

		default:
			files = append(files, event)
		}
	}

	var targets []scanTarget

	if len(fileDeletes) > 0 && len(fileDeletes)+len(folderDeletes) > 1 {
		targets = append(targets, scanTarget{path: parent, mode: ModeRemoveFolder})
	} else {
		for _, event := range fileDeletes {
			targets = append(targets, scanTarget{path: event.Path, mode: ModeRemoveFile})
		}

		for _, event := range folderDeletes {
			targets = append(targets, scanTarget{path: event.Path, mode: ModeRemoveFolder})
		}
	}

	for idx, event := range concatEvents(files, folders, infoFiles) {
		if idx > 0 {
			logger.Debug("skipped sibling",
				slog.String("name", event.Target.Title),
			)

			continue
		}

		mode := ModeAdd
		if !event.IsFolder && infoExtensions[strings.ToLower(path.Ext(event.Path))] {
			mode = ModeRefresh
		}

		targets = append(targets, scanTarget{path: event.Path, mode: mode})
	}

	return targets
}

func concatEvents(lists ...[]*activity.Event) []*activity.Event {
	var out []*activity.Event
	for _, list := range lists {
		out = append(out, list...)
	}

	return out
}

// GDSTool broadcasts through a Flaskfarm gds_tool plugin.
type GDSTool struct {
	*gdsBroadcast
	client *receivers.Flaskfarm
}

func NewGDSTool(url, apiKey string, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*GDSTool, error) {
	b, err := newBase("GDSToolDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewFlaskfarm(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	g := &GDSTool{client: client}
	g.gdsBroadcast = newGDSBroadcast(b, interval, g.broadcast)

	return g, nil
}

func (g *GDSTool) broadcast(ctx context.Context, target, mode string) error {
	return g.client.GDSToolBroadcast(ctx, target, mode)
}

// Flaskfarmaider broadcasts through a flaskfarmaider bot.
type Flaskfarmaider struct {
	*gdsBroadcast
	client *receivers.FlaskfarmaiderBot
}

func NewFlaskfarmaider(url, apiKey string, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*Flaskfarmaider, error) {
	b, err := newBase("FlaskfarmaiderDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewFlaskfarmaiderBot(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	f := &Flaskfarmaider{client: client}
	f.gdsBroadcast = newGDSBroadcast(b, interval, f.broadcast)

	return f, nil
}

func (f *Flaskfarmaider) broadcast(ctx context.Context, target, mode string) error {
	return f.client.BroadcastGDS(ctx, target, mode)
}
