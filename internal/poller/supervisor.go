package poller

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// Supervisor runs a set of pollers as one unit and, when a check interval
// is configured, a watchdog that periodically logs each poller's queue
// depth and target watermarks.
type Supervisor struct {
	pollers       []*Poller
	checkInterval time.Duration
	logger        *slog.Logger
}

func NewSupervisor(pollers []*Poller, checkInterval time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		pollers:       pollers,
		checkInterval: checkInterval,
		logger:        logger,
	}
}

// Run drives every poller until the context is cancelled or one fails
// fatally; either unwinds the whole group.
func (s *Supervisor) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, p := range s.pollers {
		group.Go(func() error {
			return p.Run(ctx)
		})
	}

	if s.checkInterval > 0 {
		group.Go(func() error {
			return s.watch(ctx)
		})
	}

	return group.Wait()
}

func (s *Supervisor) watch(ctx context.Context) error {
	for {
		if err := httpc.Sleep(ctx, s.checkInterval); err != nil {
			return nil
		}

		for _, p := range s.pollers {
			attrs := []any{
				slog.String("poller", p.Name()),
				slog.Int("queue_depth", p.QueueDepth()),
			}

			for target, watermark := range p.Watermarks() {
				attrs = append(attrs, slog.Time("watermark:"+target, watermark))
			}

			s.logger.Info("poller status", attrs...)
		}
	}
}
