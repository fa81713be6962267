package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// gdsPathPrefix is the mount root every GDS broadcast path must live under.
const gdsPathPrefix = "/ROOT/GDRIVE"

// Flaskfarm talks to a Flaskfarm instance carrying the gds_tool and
// plex_mate plugins.
type Flaskfarm struct {
	base    *url.URL
	apiKey  string
	session *httpc.Session
	logger  *slog.Logger
}

var (
	epGDSToolBroadcast = httpc.Endpoint{
		Method:   "GET",
		Path:     "/gds_tool/api/fp/broadcast",
		Interval: 1500 * time.Millisecond,
	}
	epPlexMateDoScan = httpc.Endpoint{Method: "POST", Path: "/plex_mate/api/scan/do_scan"}
)

func NewFlaskfarm(rawURL, apiKey string, session *httpc.Session, logger *slog.Logger) (*Flaskfarm, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: flaskfarm: %w", err)
	}

	return &Flaskfarm{
		base:    base,
		apiKey:  strings.TrimSpace(apiKey),
		session: session,
		logger:  logger,
	}, nil
}

// GDSToolBroadcast announces one path change to gds_tool. gdsPath must live
// under the /ROOT/GDRIVE mount.
func (f *Flaskfarm) GDSToolBroadcast(ctx context.Context, gdsPath, scanMode string) error {
	if !strings.HasPrefix(gdsPath, gdsPathPrefix) {
		return fmt.Errorf("receivers: path must start with %q: %q", gdsPathPrefix+"/", gdsPath)
	}

	call := httpc.Call{
		Params: url.Values{
			"gds_path":  {gdsPath},
			"scan_mode": {scanMode},
			"apikey":    {f.apiKey},
		},
	}

	resp := f.session.Do(ctx, f.base, epGDSToolBroadcast, call)
	if resp.Err != nil {
		return resp.Err
	}

	f.logger.Info("gds_tool broadcast",
		slog.String("mode", scanMode),
		slog.String("target", gdsPath),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

// PlexMateScan queues one scan job on plex_mate. mode is ADD, REFRESH,
// REMOVE_FILE or REMOVE_FOLDER.
func (f *Flaskfarm) PlexMateScan(ctx context.Context, target, mode string) *httpc.Response {
	call := httpc.Call{
		Form: url.Values{
			"target": {target},
			"mode":   {mode},
			"apikey": {f.apiKey},
		},
	}

	resp := f.session.Do(ctx, f.base, epPlexMateDoScan, call)
	f.logger.Info("plex_mate scan",
		slog.String("mode", mode),
		slog.String("target", target),
		slog.Int("status", resp.StatusCode),
	)

	return resp
}

// FlaskfarmaiderBot posts GDS broadcasts to a flaskfarmaider bot instead of
// a full Flaskfarm instance.
type FlaskfarmaiderBot struct {
	base    *url.URL
	apiKey  string
	session *httpc.Session
	logger  *slog.Logger
}

var epBotBroadcastGDS = httpc.Endpoint{Method: "POST", Path: "/api/broadcasts/gds"}

func NewFlaskfarmaiderBot(rawURL, apiKey string, session *httpc.Session, logger *slog.Logger) (*FlaskfarmaiderBot, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: flaskfarmaider: %w", err)
	}

	return &FlaskfarmaiderBot{
		base:    base,
		apiKey:  strings.TrimSpace(apiKey),
		session: session,
		logger:  logger,
	}, nil
}

// BroadcastGDS announces one path change. target must live under the
// /ROOT/GDRIVE mount.
func (b *FlaskfarmaiderBot) BroadcastGDS(ctx context.Context, target, mode string) error {
	if !strings.HasPrefix(target, gdsPathPrefix) {
		return fmt.Errorf("receivers: path must start with %q: %q", gdsPathPrefix+"/", target)
	}

	call := httpc.Call{
		Form: url.Values{
			"path":   {target},
			"mode":   {mode},
			"apikey": {b.apiKey},
		},
	}

	resp := b.session.Do(ctx, b.base, epBotBroadcastGDS, call)
	if resp.Err != nil {
		return resp.Err
	}

	b.logger.Info("flaskfarmaider broadcast",
		slog.String("mode", mode),
		slog.String("target", target),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}
