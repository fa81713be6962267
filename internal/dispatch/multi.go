package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// ServerConfig configures one sub-dispatcher of a MultiServer. Fields are
// used as each sub-dispatcher kind requires them.
type ServerConfig struct {
	URL      string   `yaml:"url"`
	Token    string   `yaml:"token"`
	APIKey   string   `yaml:"apikey"`
	Mappings []string `yaml:"mappings"`
}

// MultiServer fans a flushed parent out to groups of sub-dispatchers in two
// phases: every rclone first (cache coherence before scans), then plex,
// jellyfin, kavita and stash concurrently. Both phases complete before the
// next parent is processed. The buffered sub-dispatchers never run their own
// flush loops; their flush logic is invoked directly.
type MultiServer struct {
	buffered
	rclones   []*Rclone
	plexes    []*Plex
	jellyfins []*Jellyfin
	kavitas   []*Kavita
	stashes   []*Stash
}

func NewMultiServer(rclones, plexes, jellyfins, kavitas, stashes []ServerConfig, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*MultiServer, error) {
	b, err := newBase("MultiServerDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	m := &MultiServer{}
	m.buffered = newBuffered(b, interval, m.flushParent)

	for _, cfg := range rclones {
		d, err := NewRclone(cfg.URL, cfg.Mappings, session, logger)
		if err != nil {
			return nil, err
		}

		m.rclones = append(m.rclones, d)
	}

	for _, cfg := range plexes {
		d, err := NewPlex(cfg.URL, cfg.Token, cfg.Mappings, session, logger)
		if err != nil {
			return nil, err
		}

		m.plexes = append(m.plexes, d)
	}

	for _, cfg := range jellyfins {
		d, err := NewJellyfin(cfg.URL, cfg.APIKey, cfg.Mappings, interval, session, logger)
		if err != nil {
			return nil, err
		}

		m.jellyfins = append(m.jellyfins, d)
	}

	for _, cfg := range kavitas {
		d, err := NewKavita(cfg.URL, cfg.APIKey, cfg.Mappings, interval, session, logger)
		if err != nil {
			return nil, err
		}

		m.kavitas = append(m.kavitas, d)
	}

	for _, cfg := range stashes {
		d, err := NewStash(cfg.URL, cfg.APIKey, cfg.Mappings, interval, session, logger)
		if err != nil {
			return nil, err
		}

		m.stashes = append(m.stashes, d)
	}

	return m, nil
}

func (m *MultiServer) flushParent(ctx context.Context, parent string, events []*activity.Event) error {
	acts := lastPerPath(events)

	var fileDeletes, folderDeletes []*activity.Event

	anyFile := false
	for _, event := range acts {
		if !event.IsFolder {
			anyFile = true
		}

		if event.Action != activity.ActionDelete {
			continue
		}

		if event.IsFolder {
			folderDeletes = append(folderDeletes, event)
		} else {
			fileDeletes = append(fileDeletes, event)
		}
	}

	parentEvent := &activity.Event{Path: parent, IsFolder: true}

	var deletedTargets []*activity.Event
	if len(fileDeletes) > 0 && len(fileDeletes)+len(folderDeletes) > 1 {
		deletedTargets = []*activity.Event{
			{Path: parent, IsFolder: true, Action: activity.ActionDelete},
		}
	} else {
		deletedTargets = append(deletedTargets, fileDeletes...)
		deletedTargets = append(deletedTargets, folderDeletes...)
	}

	// Phase 1: rclone caches first, so the scans below see fresh listings.
	var rcloneGroup errgroup.Group
	for _, rclone := range m.rclones {
		rcloneGroup.Go(func() error {
			for _, event := range deletedTargets {
				rclone.Dispatch(ctx, event)
			}

			rclone.Dispatch(ctx, parentEvent)

			return nil
		})
	}

	rcloneGroup.Wait()

	// Phase 2: media servers in parallel.
	plexTargets := acts
	if anyFile {
		plexTargets = []*activity.Event{parentEvent}
	}

	var group errgroup.Group

	for _, plex := range m.plexes {
		group.Go(func() error {
			for _, event := range plexTargets {
				plex.Dispatch(ctx, event)
			}

			return nil
		})
	}

	for _, jellyfin := range m.jellyfins {
		group.Go(func() error { return jellyfin.flushParent(ctx, parent, acts) })
	}

	for _, kavita := range m.kavitas {
		group.Go(func() error { return kavita.flushParent(ctx, parent, acts) })
	}

	for _, stash := range m.stashes {
		group.Go(func() error { return stash.flushParent(ctx, parent, acts) })
	}

	return group.Wait()
}
