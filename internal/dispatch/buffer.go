package dispatch

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// FolderBuffer accumulates events keyed by their parent directory, keeping
// the order in which parents were first seen. Safe for concurrent use; the
// lock is never held across a flush.
type FolderBuffer struct {
	mu      sync.Mutex
	order   []string
	entries map[string][]*activity.Event
}

func NewFolderBuffer() *FolderBuffer {
	return &FolderBuffer{entries: make(map[string][]*activity.Event)}
}

// Add appends an event under its parent key.
func (f *FolderBuffer) Add(parent string, event *activity.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[parent]; !ok {
		f.order = append(f.order, parent)
	}

	f.entries[parent] = append(f.entries[parent], event)
}

// PopOldest removes and returns the earliest-seen parent and its events.
func (f *FolderBuffer) PopOldest() (string, []*activity.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.order) == 0 {
		return "", nil, false
	}

	parent := f.order[0]
	f.order = f.order[1:]

	events := f.entries[parent]
	delete(f.entries, parent)

	return parent, events, true
}

// Len reports the number of buffered parents.
func (f *FolderBuffer) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.order)
}

// flushFunc delivers one parent's accumulated events to a receiver.
type flushFunc func(ctx context.Context, parent string, events []*activity.Event) error

// buffered implements the coalescing Dispatch/Run pair shared by every
// buffered dispatcher. The concrete type supplies the flush function.
type buffered struct {
	base
	interval time.Duration
	buffer   *FolderBuffer
	flush    flushFunc
}

func newBuffered(b base, interval time.Duration, flush flushFunc) buffered {
	return buffered{
		base:     b,
		interval: interval,
		buffer:   NewFolderBuffer(),
		flush:    flush,
	}
}

// Dispatch splits a move into its delete variant and the surviving event,
// then appends each under its parent directory.
func (d *buffered) Dispatch(ctx context.Context, event *activity.Event) error {
	events := []*activity.Event{event}

	if event.RemovedPath != "" {
		kept := event.Clone()
		kept.RemovedPath = ""

		removed := event.Clone()
		removed.Action = activity.ActionDelete
		removed.Path = event.RemovedPath
		removed.RemovedPath = ""

		events = []*activity.Event{kept, removed}
	}

	for _, ev := range events {
		d.buffer.Add(path.Dir(ev.Path), ev)
	}

	return nil
}

// Run is the flush loop. Each tick snapshots the buffered parent count and
// flushes that many oldest parents, so parents arriving mid-flush wait for
// the next tick and continuous arrival cannot starve the sleep.
func (d *buffered) Run(ctx context.Context) error {
	for {
		d.flushTick(ctx)

		if err := httpc.Sleep(ctx, d.interval); err != nil {
			return nil
		}
	}
}

func (d *buffered) flushTick(ctx context.Context) {
	for n := d.buffer.Len(); n > 0; n-- {
		if ctx.Err() != nil {
			return
		}

		parent, events, ok := d.buffer.PopOldest()
		if !ok {
			return
		}

		if err := d.flush(ctx, parent, events); err != nil {
			d.logger.Error("flush failed",
				slog.String("dispatcher", d.name),
				slog.String("parent", parent),
				slog.String("error", err.Error()),
			)
		}
	}
}
