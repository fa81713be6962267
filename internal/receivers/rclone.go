// Package receivers holds the thin per-service wrappers every dispatcher
// delivers through. Each client owns its base URL, credentials, and a
// pre-send adjustment applied to every call; all wire traffic goes through
// the shared httpc session envelope.
package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// Rclone drives a remote rclone rc daemon's VFS endpoints. The VFS selector
// comes from the URL fragment ("http://host:5572#gcrypt" selects "gcrypt:"),
// basic auth from the URL userinfo.
type Rclone struct {
	base    *url.URL
	vfs     string
	auth    *httpc.BasicAuth
	session *httpc.Session
	logger  *slog.Logger
}

var (
	epVFSStats       = httpc.Endpoint{Method: "POST", Path: "/vfs/stats"}
	epVFSRefresh     = httpc.Endpoint{Method: "POST", Path: "/vfs/refresh"}
	epVFSForget      = httpc.Endpoint{Method: "POST", Path: "/vfs/forget"}
	epOperationsStat = httpc.Endpoint{Method: "POST", Path: "/operations/stat"}
)

// NewRclone parses the rc address. The scheme and host are required; the
// fragment, username and password are optional.
func NewRclone(rawURL string, session *httpc.Session, logger *slog.Logger) (*Rclone, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("receivers: parsing rclone url %q: %w", rawURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("receivers: rclone rc address needs scheme and host: %q", rawURL)
	}

	r := &Rclone{
		base:    &url.URL{Scheme: parsed.Scheme, Host: parsed.Host},
		session: session,
		logger:  logger,
	}

	if parsed.Fragment != "" {
		r.vfs = parsed.Fragment + ":"
	}

	if user := parsed.User; user != nil {
		password, _ := user.Password()
		if user.Username() != "" && password != "" {
			r.auth = &httpc.BasicAuth{User: user.Username(), Password: password}
		}
	}

	return r, nil
}

// VFS returns the fs selector parsed from the URL fragment, or "".
func (r *Rclone) VFS() string {
	return r.vfs
}

func (r *Rclone) call(ctx context.Context, ep httpc.Endpoint, body map[string]any) *httpc.Response {
	if r.vfs != "" {
		if _, ok := body["fs"]; !ok {
			body["fs"] = r.vfs
		}
	}

	return r.session.Do(ctx, r.base, ep, httpc.Call{JSON: body, Auth: r.auth})
}

// Stats returns the VFS metadata-cache dir and file counts, zero when the
// daemon reports none.
func (r *Rclone) Stats(ctx context.Context) (dirs, files int) {
	resp := r.call(ctx, epVFSStats, map[string]any{})
	if !resp.OK() || resp.JSON == nil {
		r.logger.Error("rclone: no metadata cache statistics, assumed 0")

		return 0, 0
	}

	cache, _ := resp.JSON["metadataCache"].(map[string]any)

	return intField(cache, "dirs"), intField(cache, "files")
}

// Refresh refreshes dir in the VFS directory cache. An empty dir refreshes
// the VFS root.
func (r *Rclone) Refresh(ctx context.Context, dir string, recursive bool) *httpc.Response {
	body := map[string]any{"recursive": fmt.Sprintf("%t", recursive)}
	if dir != "" {
		body["dir"] = dir
	}

	return r.call(ctx, epVFSRefresh, body)
}

// RefreshWalk refreshes ancestors of target top-down from the filesystem
// root until one returns OK, then refreshes the target itself. Cold caches
// where intermediate directories are not yet materialised need the walk;
// refreshing an unknown directory is a no-op for the daemon.
func (r *Rclone) RefreshWalk(ctx context.Context, target string, recursive bool) {
	for _, dir := range ancestorsTopDown(target) {
		refreshDir := dir
		if refreshDir == "/" {
			// The daemon addresses the VFS root as the absent dir key.
			refreshDir = ""
		}

		resp := r.Refresh(ctx, refreshDir, false)
		if refreshResult(resp, dir) == "ok" {
			resp = r.Refresh(ctx, target, recursive)
			r.logger.Info("rclone refresh",
				slog.String("dir", target),
				slog.Int("status", resp.StatusCode),
			)

			return
		}

		if resp.Err != nil || refreshFailed(resp) {
			return
		}
	}

	r.logger.Error("rclone refresh hit the root path", slog.String("dir", target))
}

// Forget drops path from the VFS cache, keyed as a directory or a file.
func (r *Rclone) Forget(ctx context.Context, target string, isDir bool) *httpc.Response {
	key := "file"
	if isDir {
		key = "dir"
	}

	resp := r.call(ctx, epVFSForget, map[string]any{key: target})
	r.logger.Info("rclone forget",
		slog.String(key, target),
		slog.Int("status", resp.StatusCode),
	)

	return resp
}

// IsDir stats a remote path and reports whether the daemon sees a directory.
func (r *Rclone) IsDir(ctx context.Context, target string) bool {
	resp := r.call(ctx, epOperationsStat, map[string]any{"remote": target})
	if resp.JSON == nil {
		return false
	}

	item, _ := resp.JSON["item"].(map[string]any)
	isDir, _ := item["IsDir"].(bool)

	return isDir
}

// refreshResult extracts the per-directory status string from a vfs/refresh
// reply ("OK", "file does not exist", ...).
func refreshResult(resp *httpc.Response, dir string) string {
	if resp.JSON == nil {
		return ""
	}

	result, _ := resp.JSON["result"].(map[string]any)

	status, ok := result[dir].(string)
	if !ok && dir == "/" {
		status, _ = result[""].(string)
	}

	return strings.ToLower(status)
}

// refreshFailed reports a daemon-level error entry in a vfs/refresh reply.
func refreshFailed(resp *httpc.Response) bool {
	if resp.JSON == nil {
		return false
	}

	result, _ := resp.JSON["result"].(map[string]any)
	errMsg, _ := result["error"].(string)

	return errMsg != ""
}

// ancestorsTopDown lists the ancestor directories of target from the root
// down, excluding target itself. "/a/b/c" yields ["/", "/a", "/a/b"].
func ancestorsTopDown(target string) []string {
	cleaned := path.Clean(target)

	var chain []string
	for dir := path.Dir(cleaned); ; dir = path.Dir(dir) {
		chain = append(chain, dir)
		if dir == "/" || dir == "." {
			break
		}
	}

	// Reverse into root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain
}

func intField(obj map[string]any, key string) int {
	v, _ := obj[key].(float64)

	return int(v)
}
