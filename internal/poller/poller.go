package poller

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/dispatch"
	"github.com/tonimelisma/gdpoller-go/internal/gdrive"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/metrics"
)

const (
	// resolveConcurrency caps in-flight Drive metadata fetches during
	// enrichment so an activity burst cannot saturate the API quota.
	resolveConcurrency = 5

	trashDetail     = "TRASH"
	driveFolderLink = "https://drive.google.com/drive/folders/"

	// timestampLayout renders event instants in the local timezone,
	// offset-aware, for receivers that display them.
	timestampLayout = "2006-01-02T15:04:05-0700"
)

// ActivityQuerier executes one Drive Activity query page. *gdrive.Client
// satisfies it; tests use canned fakes.
type ActivityQuerier interface {
	QueryActivities(ctx context.Context, req *gdrive.QueryRequest) (*gdrive.QueryResponse, error)
}

// PathResolver resolves an item id into its absolute logical path.
// *gdrive.Resolver satisfies it.
type PathResolver interface {
	Resolve(ctx context.Context, itemID, ancestorID, rootLabel string) (*gdrive.Resolved, bool)
}

// Options configures one poller. Durations arrive pre-resolved from the
// settings layer; zero values are not defaulted here.
type Options struct {
	Name        string
	Targets     []Target
	Dispatchers []dispatch.Dispatcher

	PollingInterval   time.Duration
	PollingDelay      time.Duration
	DispatchInterval  time.Duration
	TaskCheckInterval time.Duration

	PageSize       int
	IgnoreFolder   bool
	Actions        []string
	Patterns       []string
	IgnorePatterns []string

	Querier  ActivityQuerier
	Resolver PathResolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Poller polls one set of targets, enriches the resulting events and fans
// them out to its dispatchers in configuration order.
type Poller struct {
	name        string
	dispatchers []dispatch.Dispatcher
	states      []*targetState

	pollingInterval   time.Duration
	pollingDelay      time.Duration
	dispatchInterval  time.Duration
	taskCheckInterval time.Duration

	pageSize     int
	ignoreFolder bool

	actions        map[string]bool
	patterns       []*regexp.Regexp
	ignorePatterns []*regexp.Regexp

	querier  ActivityQuerier
	resolver PathResolver
	metrics  *metrics.Metrics
	logger   *slog.Logger

	queue *Queue
	sem   *semaphore.Weighted

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the options and builds a poller. Pattern entries are
// compiled case-insensitively; an empty action list admits every action
// kind; the watermark starts at now minus the polling delay.
func New(opts Options) (*Poller, error) {
	if len(opts.Targets) == 0 {
		return nil, fmt.Errorf("poller: %s has no targets", opts.Name)
	}

	if opts.Querier == nil || opts.Resolver == nil {
		return nil, fmt.Errorf("poller: %s needs a querier and a resolver", opts.Name)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	actions := opts.Actions
	if len(actions) == 0 {
		actions = activity.Actions
	}

	allowed := make(map[string]bool, len(actions))
	for _, action := range actions {
		allowed[action] = true
	}

	patternSpecs := opts.Patterns
	if len(patternSpecs) == 0 {
		patternSpecs = []string{".*"}
	}

	patterns, err := compilePatterns(patternSpecs)
	if err != nil {
		return nil, fmt.Errorf("poller: %s patterns: %w", opts.Name, err)
	}

	ignorePatterns, err := compilePatterns(opts.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("poller: %s ignore_patterns: %w", opts.Name, err)
	}

	p := &Poller{
		name:              opts.Name,
		dispatchers:       opts.Dispatchers,
		pollingInterval:   opts.PollingInterval,
		pollingDelay:      opts.PollingDelay,
		dispatchInterval:  opts.DispatchInterval,
		taskCheckInterval: opts.TaskCheckInterval,
		pageSize:          opts.PageSize,
		ignoreFolder:      opts.IgnoreFolder,
		actions:           allowed,
		patterns:          patterns,
		ignorePatterns:    ignorePatterns,
		querier:           opts.Querier,
		resolver:          opts.Resolver,
		metrics:           opts.Metrics,
		logger:            logger.With(slog.String("poller", opts.Name)),
		queue:             NewQueue(),
		sem:               semaphore.NewWeighted(resolveConcurrency),
		now:               time.Now,
		sleep:             httpc.Sleep,
	}

	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	start := p.now().Add(-opts.PollingDelay)
	for _, target := range opts.Targets {
		p.states = append(p.states, &targetState{
			target:       target,
			lastActivity: start,
			lastSilence:  p.now(),
		})
	}

	return p, nil
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))

	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, err
		}

		out = append(out, re)
	}

	return out, nil
}

// Name returns the poller's configured name.
func (p *Poller) Name() string {
	return p.name
}

// QueueDepth reports the number of events awaiting dispatch.
func (p *Poller) QueueDepth() int {
	return p.queue.Len()
}

// Watermarks returns each target's consumption watermark, keyed by the
// target's configuration form.
func (p *Poller) Watermarks() map[string]time.Time {
	out := make(map[string]time.Time, len(p.states))
	for _, state := range p.states {
		out[state.target.String()] = state.watermark()
	}

	return out
}

// Run drives the poller until the context is cancelled: one poll loop per
// target, one dispatch loop, and one flush loop per buffered dispatcher.
func (p *Poller) Run(ctx context.Context) error {
	targets := make([]Target, 0, len(p.states))
	for _, state := range p.states {
		targets = append(targets, state.target)
	}

	p.logger.Info("poller started",
		slog.String("targets", describeTargets(targets)),
		slog.Int("dispatchers", len(p.dispatchers)),
	)

	group, ctx := errgroup.WithContext(ctx)

	for _, state := range p.states {
		group.Go(func() error {
			return p.pollLoop(ctx, state)
		})
	}

	group.Go(func() error {
		return p.dispatchLoop(ctx)
	})

	for _, d := range p.dispatchers {
		if runner, ok := d.(dispatch.Runner); ok {
			group.Go(func() error {
				return runner.Run(ctx)
			})
		}
	}

	return group.Wait()
}

func (p *Poller) pollLoop(ctx context.Context, state *targetState) error {
	for {
		p.pollTarget(ctx, state)

		if err := p.sleep(ctx, p.pollingInterval); err != nil {
			return nil
		}
	}
}

// pollTarget consumes every available activity page for one target. The
// window bounds are recomputed per page so continuation pages see a
// monotonically advancing end; the watermark only moves once a page has
// actually delivered activities. A transport failure aborts the iteration
// with the watermark untouched, so the next interval retries the window.
func (p *Poller) pollTarget(ctx context.Context, state *targetState) {
	pageToken := ""

	for {
		start := state.watermark()
		end := p.now().Add(-p.pollingDelay)

		resp, err := p.querier.QueryActivities(ctx, &gdrive.QueryRequest{
			PageSize:     p.pageSize,
			AncestorName: "items/" + state.target.ID,
			PageToken:    pageToken,
			Filter:       fmt.Sprintf("time > %d AND time <= %d", start.UnixMilli(), end.UnixMilli()),
		})
		if err != nil {
			p.logger.Warn("activity query failed",
				slog.String("target", state.target.String()),
				slog.String("error", err.Error()),
			)

			return
		}

		if len(resp.Activities) == 0 {
			p.reportSilence(state)

			return
		}

		state.setWatermark(end)

		for _, raw := range resp.Activities {
			event, err := activity.FromRaw(raw)
			if err != nil {
				p.logger.Warn("malformed activity record", slog.String("error", err.Error()))
				continue
			}

			event.Ancestor = state.target.ID
			event.RootLabel = state.target.RootLabel
			event.Poller = p.name

			p.queue.Push(event)
			p.metrics.EventsPolled.WithLabelValues(p.name).Inc()
		}

		if resp.NextPageToken == "" {
			return
		}

		pageToken = resp.NextPageToken
	}
}

// reportSilence logs once per task_check_interval when a target keeps
// returning empty windows. Disabled when the interval is not positive.
func (p *Poller) reportSilence(state *targetState) {
	if p.taskCheckInterval <= 0 {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := p.now()
	if now.Sub(state.lastSilence) <= p.taskCheckInterval {
		return
	}

	state.lastSilence = now

	p.logger.Info("no recent activity",
		slog.String("target", state.target.String()),
		slog.Time("watermark", state.lastActivity),
	)
}

func (p *Poller) dispatchLoop(ctx context.Context) error {
	for {
		event, ok := p.queue.Pop()
		p.metrics.QueueDepth.WithLabelValues(p.name).Set(float64(p.queue.Len()))

		if !ok {
			if err := p.sleep(ctx, p.dispatchInterval); err != nil {
				return nil
			}

			continue
		}

		p.dispatchEvent(ctx, event)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// dispatchEvent runs the full enrichment pipeline for one event: filters,
// path resolution, link and removed-path synthesis, pattern filters,
// reconciliation, then fan-out in configuration order.
func (p *Poller) dispatchEvent(ctx context.Context, event *activity.Event) {
	if !p.actions[event.Action] {
		return
	}

	event.IsFolder = event.Target.MimeType == activity.MimeFolder ||
		event.Target.MimeType == activity.MimeShortcut

	if event.IsFolder && p.ignoreFolder {
		return
	}

	// Permanent deletes have no resolvable path; only trashing is actionable.
	if event.Action == activity.ActionDelete && event.Detail != trashDetail {
		return
	}

	p.enrich(ctx, event)

	event.TimestampText = event.Timestamp.Local().Format(timestampLayout)
	event.Path = p.filterPath(event.Path)
	event.RemovedPath = p.filterPath(event.RemovedPath)

	if !p.reconcile(event) {
		return
	}

	for _, d := range p.dispatchers {
		if err := p.dispatchOne(ctx, d, event); err != nil {
			p.logger.Error("dispatch failed",
				slog.String("dispatcher", d.Name()),
				slog.String("path", event.Path),
				slog.String("error", err.Error()),
				slog.String("raw", string(event.Raw)),
			)
			p.metrics.DispatchErrors.WithLabelValues(p.name, d.Name()).Inc()

			continue
		}

		p.metrics.EventsDispatched.WithLabelValues(p.name, d.Name()).Inc()
	}
}

// enrich fills path, parent, link and size from the resolver, plus the
// removed path for moves and renames.
func (p *Poller) enrich(ctx context.Context, event *activity.Event) {
	resolved, ok := p.resolve(ctx, event.Target.ID(), event)
	if !ok {
		event.Path = "/unknown/" + event.Target.Title
		p.metrics.ResolveFailures.WithLabelValues(p.name).Inc()
	} else {
		event.Path = resolved.Path
		event.Parent = resolved.Parent
		event.Size = resolved.Size

		event.Link = resolved.WebLink
		if event.Link == "" {
			folderID := event.Parent.ID
			if event.IsFolder {
				folderID = event.Target.ID()
			}

			event.Link = driveFolderLink + folderID
		}
	}

	switch {
	case event.Action == activity.ActionMove && event.MoveSource != nil:
		if source, ok := p.resolve(ctx, event.MoveSource.ID(), event); ok {
			event.RemovedPath = source.Path + "/" + event.Target.Title
		}
	case event.Action == activity.ActionRename && event.Detail != "" && event.Path != "":
		event.RemovedPath = path.Dir(event.Path) + "/" + event.Detail
	}
}

// resolve calls the path resolver under the shared concurrency gate.
func (p *Poller) resolve(ctx context.Context, itemID string, event *activity.Event) (*gdrive.Resolved, bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer p.sem.Release(1)

	return p.resolver.Resolve(ctx, itemID, event.Ancestor, event.RootLabel)
}

// filterPath applies the keep and ignore pattern sets; a path surviving
// neither filter is cleared rather than dropping the whole event, so
// reconciliation can still salvage the other side of a move.
func (p *Poller) filterPath(pth string) string {
	if pth == "" {
		return ""
	}

	if !matchAny(p.patterns, pth) || matchAny(p.ignorePatterns, pth) {
		return ""
	}

	return pth
}

func matchAny(patterns []*regexp.Regexp, pth string) bool {
	for _, re := range patterns {
		if re.MatchString(pth) {
			return true
		}
	}

	return false
}

// reconcile applies the (path, removed_path) truth table after filtering:
// a surviving path keeps the event as-is; a surviving removed path alone
// coerces the event into a synthetic delete of that path; neither drops it.
func (p *Poller) reconcile(event *activity.Event) bool {
	if event.Path != "" {
		return true
	}

	if event.RemovedPath == "" {
		return false
	}

	event.Action = activity.ActionDelete
	event.Path = event.RemovedPath
	event.RemovedPath = ""

	if event.MoveSource != nil {
		event.Link = driveFolderLink + event.MoveSource.ID()
		event.Detail = "Moved but can not access: " + event.Target.Name
	}

	return true
}

// dispatchOne delivers one event to one dispatcher, converting a panic into
// an error so a faulty receiver never skips the remaining dispatchers.
func (p *Poller) dispatchOne(ctx context.Context, d dispatch.Dispatcher, event *activity.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller: dispatcher %s panicked: %v", d.Name(), r)
		}
	}()

	return d.Dispatch(ctx, event)
}

// describeTargets renders the target list for startup logging.
func describeTargets(targets []Target) string {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		parts = append(parts, t.String())
	}

	return strings.Join(parts, ", ")
}
