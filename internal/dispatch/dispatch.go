// Package dispatch turns enriched activity events into side effects on
// external receivers. Every dispatcher implements the same small surface;
// buffered variants additionally run a flush loop that coalesces sibling
// events per parent directory.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

// Dispatcher is one configured event sink. Dispatch is invoked once per
// event in configuration order; implementations own their delivery policy
// (immediate or buffered).
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, event *activity.Event) error
}

// Runner is implemented by dispatchers that own a background flush loop.
// Run blocks until the context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// base carries the pieces every dispatcher shares: its configured name, a
// logger, and the optional path mappings applied just before delivery.
type base struct {
	name     string
	logger   *slog.Logger
	mappings []Mapping
}

func newBase(name string, mappings []string, logger *slog.Logger) (base, error) {
	parsed, err := ParseMappings(mappings)
	if err != nil {
		return base{}, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return base{name: name, logger: logger, mappings: parsed}, nil
}

func (b *base) Name() string {
	return b.name
}

// mapPath rewrites a path through the configured mappings; without mappings
// it is the identity.
func (b *base) mapPath(target string) string {
	return ApplyMappings(target, b.mappings)
}

// lastPerPath keeps the final event seen for each path, preserving the order
// in which paths first appeared. Buffered flushes use it so one receiver
// call reflects the end state of a burst.
func lastPerPath(events []*activity.Event) []*activity.Event {
	index := make(map[string]int, len(events))

	out := make([]*activity.Event, 0, len(events))
	for _, event := range events {
		if i, ok := index[event.Path]; ok {
			out[i] = event
			continue
		}

		index[event.Path] = len(out)
		out = append(out, event)
	}

	return out
}
