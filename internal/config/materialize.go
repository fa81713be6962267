package config

import (
	"fmt"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/dispatch"
)

// ResolvedPoller is one poller's effective configuration after inheritance:
// durations concretised, dispatcher options deep-copied.
type ResolvedPoller struct {
	Name    string
	Targets []string

	PollingInterval   time.Duration
	PollingDelay      time.Duration
	DispatchInterval  time.Duration
	TaskCheckInterval time.Duration

	PageSize       int
	IgnoreFolder   bool
	Patterns       []string
	IgnorePatterns []string
	Actions        []string

	Dispatchers []dispatch.Config
}

// Materialise resolves every poller block against the global defaults.
// Unnamed pollers get "poller-<index>". Dispatcher options are deep-copied
// so YAML anchors shared across pollers never alias mutable state.
func (s *Settings) Materialise() []ResolvedPoller {
	out := make([]ResolvedPoller, 0, len(s.Pollers))

	for i, p := range s.Pollers {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("poller-%d", i)
		}

		effective := s.Globals.override(p.Globals)

		resolved := ResolvedPoller{
			Name:              name,
			Targets:           append([]string(nil), p.Targets...),
			PollingInterval:   seconds(*effective.PollingInterval),
			PollingDelay:      seconds(*effective.PollingDelay),
			DispatchInterval:  seconds(*effective.DispatchInterval),
			TaskCheckInterval: seconds(*effective.TaskCheckInterval),
			PageSize:          *effective.PageSize,
			IgnoreFolder:      *effective.IgnoreFolder,
			Patterns:          append([]string(nil), effective.Patterns...),
			IgnorePatterns:    append([]string(nil), effective.IgnorePatterns...),
			Actions:           append([]string(nil), effective.Actions...),
		}

		for _, d := range p.Dispatchers {
			bufferInterval := *effective.BufferInterval
			if d.BufferInterval != nil {
				bufferInterval = *d.BufferInterval
			}

			resolved.Dispatchers = append(resolved.Dispatchers, dispatch.Config{
				Class:          d.Class,
				BufferInterval: seconds(bufferInterval),
				Mappings:       append([]string(nil), d.Mappings...),
				Options:        deepCopyMap(d.Options),
			})
		}

		out = append(out, resolved)
	}

	return out
}

// CacheTTL returns the resolver cache entry lifetime.
func (d Drive) CacheTTL() time.Duration {
	return seconds(d.CacheMaxAge)
}

// override layers poller-level values over the globals; nil inherits.
func (g Globals) override(p Globals) Globals {
	out := g

	if p.PollingInterval != nil {
		out.PollingInterval = p.PollingInterval
	}

	if p.PollingDelay != nil {
		out.PollingDelay = p.PollingDelay
	}

	if p.DispatchInterval != nil {
		out.DispatchInterval = p.DispatchInterval
	}

	if p.TaskCheckInterval != nil {
		out.TaskCheckInterval = p.TaskCheckInterval
	}

	if p.PageSize != nil {
		out.PageSize = p.PageSize
	}

	if p.IgnoreFolder != nil {
		out.IgnoreFolder = p.IgnoreFolder
	}

	if p.Patterns != nil {
		out.Patterns = p.Patterns
	}

	if p.IgnorePatterns != nil {
		out.IgnorePatterns = p.IgnorePatterns
	}

	if p.Actions != nil {
		out.Actions = p.Actions
	}

	if p.BufferInterval != nil {
		out.BufferInterval = p.BufferInterval
	}

	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// deepCopyMap copies a decoded YAML tree. Anchor reuse in the settings
// file makes nested maps and sequences shared by reference otherwise.
func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = deepCopyValue(value)
	}

	return out
}

func deepCopyValue(in any) any {
	switch v := in.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}

		return out
	default:
		return v
	}
}
