package poller

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Target is one watched subtree: the ancestor item id plus an optional root
// label substituted for the ancestor segment in resolved paths.
type Target struct {
	ID        string
	RootLabel string
}

// ParseTarget parses "<item_id>#<root_label>", the label being optional.
func ParseTarget(raw string) (Target, error) {
	id, label, _ := strings.Cut(raw, "#")
	if id == "" {
		return Target{}, fmt.Errorf("poller: target %q has no item id", raw)
	}

	return Target{ID: id, RootLabel: label}, nil
}

// String reserialises the target in its configuration form.
func (t Target) String() string {
	if t.RootLabel == "" {
		return t.ID
	}

	return t.ID + "#" + t.RootLabel
}

// targetState is the per-target polling state: the consumption watermark and
// the last time silence was reported. The mutex covers watchdog reads racing
// the poll loop.
type targetState struct {
	target Target

	mu           sync.Mutex
	lastActivity time.Time
	lastSilence  time.Time
}

func (s *targetState) watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActivity
}

func (s *targetState) setWatermark(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = t
}
