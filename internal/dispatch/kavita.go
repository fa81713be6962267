package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// kavitaMaxAttempts bounds the 401 re-authentication retry per scan path.
const kavitaMaxAttempts = 5

// Kavita coalesces sibling events and issues folder scans. When a flushed
// parent contains any file event the parent itself is scanned once;
// otherwise each child folder is scanned.
type Kavita struct {
	buffered
	client *receivers.Kavita
}

func NewKavita(url, apiKey string, mappings []string, interval time.Duration, session *httpc.Session, logger *slog.Logger) (*Kavita, error) {
	b, err := newBase("KavitaDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewKavita(url, apiKey, session, logger)
	if err != nil {
		return nil, err
	}

	k := &Kavita{client: client}
	k.buffered = newBuffered(b, interval, k.flushParent)

	return k, nil
}

func (k *Kavita) flushParent(ctx context.Context, parent string, events []*activity.Event) error {
	scanPaths := make([]string, 0, len(events))

	anyFile := false
	for _, event := range events {
		if !event.IsFolder {
			anyFile = true
		}

		scanPaths = append(scanPaths, event.Path)
	}

	if anyFile {
		scanPaths = []string{parent}
	}

	for _, scanPath := range scanPaths {
		if err := k.scan(ctx, k.mapPath(scanPath)); err != nil {
			return err
		}
	}

	return nil
}

// scan issues one scan-folder call, re-authenticating and retrying on 401 up
// to the attempt bound.
func (k *Kavita) scan(ctx context.Context, target string) error {
	for attempt := 0; attempt < kavitaMaxAttempts; attempt++ {
		status := k.client.ScanFolder(ctx, target)
		if status == http.StatusUnauthorized {
			if err := k.client.Authenticate(ctx); err != nil {
				k.logger.Warn("kavita re-authentication failed",
					slog.String("error", err.Error()),
				)
			}

			continue
		}

		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			k.logger.Warn("kavita scan returned non-2xx",
				slog.Int("status", status),
				slog.String("target", target),
			)
		}

		return nil
	}

	return fmt.Errorf("dispatch: kavita login failed after %d attempts", kavitaMaxAttempts)
}
