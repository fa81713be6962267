package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// Plex triggers partial library scans on a Plex Media Server. Every call
// carries the X-Plex-Token query parameter and asks for JSON.
type Plex struct {
	base    *url.URL
	token   string
	session *httpc.Session
	logger  *slog.Logger
}

var (
	epPlexSections = httpc.Endpoint{Method: "GET", Path: "/library/sections"}
	epPlexRefresh  = httpc.Endpoint{Method: "GET", Path: "/library/sections/{section}/refresh"}
)

func NewPlex(rawURL, token string, session *httpc.Session, logger *slog.Logger) (*Plex, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: plex: %w", err)
	}

	return &Plex{
		base:    base,
		token:   strings.TrimSpace(token),
		session: session,
		logger:  logger,
	}, nil
}

// adjust injects the Plex token and Accept header into every call.
func (p *Plex) adjust(call *httpc.Call) {
	if call.Params == nil {
		call.Params = url.Values{}
	}

	call.Params.Set("X-Plex-Token", p.token)

	call.Headers = http.Header{"Accept": {"application/json"}}
}

// SectionForPath returns the library section key containing the given path,
// matching containment in either direction (a section location under the
// path, or the path under a location). Returns -1 when nothing matches.
func (p *Plex) SectionForPath(ctx context.Context, target string) int {
	call := httpc.Call{}
	p.adjust(&call)

	resp := p.session.Do(ctx, p.base, epPlexSections, call)
	if resp.JSON == nil {
		p.logger.Error("plex: no section information",
			slog.Int("status", resp.StatusCode),
		)

		return -1
	}

	container, _ := resp.JSON["MediaContainer"].(map[string]any)
	directories, _ := container["Directory"].([]any)

	for _, d := range directories {
		directory, _ := d.(map[string]any)
		locations, _ := directory["Location"].([]any)

		for _, l := range locations {
			location, _ := l.(map[string]any)
			locPath, _ := location["path"].(string)

			if pathContains(locPath, target) || pathContains(target, locPath) {
				key, _ := directory["key"].(string)

				var section int
				if _, err := fmt.Sscanf(key, "%d", &section); err == nil {
					return section
				}
			}
		}
	}

	return -1
}

// Scan refreshes the section containing target. Files scan their parent
// directory; the path query parameter restricts the refresh to it.
func (p *Plex) Scan(ctx context.Context, target string, force, isDir bool) {
	scanTarget := target
	if !isDir {
		scanTarget = path.Dir(target)
	}

	section := p.SectionForPath(ctx, scanTarget)

	call := httpc.Call{
		Params: url.Values{"path": {scanTarget}},
		Format: map[string]string{"section": fmt.Sprintf("%d", section)},
	}
	if force {
		call.Params.Set("force", "1")
	}

	p.adjust(&call)

	resp := p.session.Do(ctx, p.base, epPlexRefresh, call)
	p.logger.Info("plex scan",
		slog.String("target", scanTarget),
		slog.Int("section", section),
		slog.Int("status", resp.StatusCode),
	)
}

// pathContains reports whether child equals base or lives beneath it.
func pathContains(base, child string) bool {
	base = path.Clean(base)
	child = path.Clean(child)

	return child == base || strings.HasPrefix(child, base+"/")
}

// parseBaseURL validates and trims a receiver base address.
func parseBaseURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("address needs scheme and host: %q", rawURL)
	}

	return parsed, nil
}
