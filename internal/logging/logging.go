// Package logging builds the process logger: text output on a terminal,
// JSON otherwise, with secret redaction applied to every line before it
// reaches the sink. Receivers authenticate with api keys and tokens that
// travel in URLs and form bodies, so the raw log stream cannot be trusted
// not to contain them.
package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/mattn/go-isatty"
)

// DefaultSubstitute replaces every captured secret group.
const DefaultSubstitute = "<REDACTED>"

// defaultPatterns cover the secret shapes the receivers use: query or form
// api keys, Plex tokens, bearer tokens, and Discord webhook path segments.
// Only the capture group is replaced; the surrounding context survives for
// debugging.
var defaultPatterns = []string{
	`(?i)apikey[=:"\s]+([^&\s"',}]+)`,
	`(?i)X-Plex-Token[=:"\s]+([^&\s"',}]+)`,
	`(?i)token[=:"\s]+([^&\s"',}]+)`,
	`webhooks/([^/\s]+/[^/\s"']+)`,
}

// Options configure New. Zero values mean the defaults: level debug,
// built-in patterns, the standard substitute, stderr.
type Options struct {
	Level      string
	Patterns   []string
	Substitute string
	Output     io.Writer
}

// New builds the logger. An unparseable pattern is reported once on the
// plain logger and skipped rather than failing startup.
func New(opts Options) *slog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	redactor := newRedactor(opts.Patterns, opts.Substitute)

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	sink := &redactingWriter{out: output, redactor: redactor}

	if file, ok := output.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		return slog.New(slog.NewTextHandler(sink, handlerOpts))
	}

	return slog.New(slog.NewJSONHandler(sink, handlerOpts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type redactor struct {
	patterns   []*regexp.Regexp
	substitute string
}

func newRedactor(patterns []string, substitute string) *redactor {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}

	if substitute == "" {
		substitute = DefaultSubstitute
	}

	r := &redactor{substitute: substitute}

	for _, expr := range patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			slog.Warn("skipping unparseable redaction pattern",
				slog.String("pattern", expr),
				slog.String("error", err.Error()),
			)

			continue
		}

		r.patterns = append(r.patterns, re)
	}

	return r
}

// redact replaces the first capture group of every pattern match. Patterns
// without a group have their whole match replaced.
func (r *redactor) redact(line []byte) []byte {
	for _, re := range r.patterns {
		line = re.ReplaceAllFunc(line, func(match []byte) []byte {
			groups := re.FindSubmatchIndex(match)
			if len(groups) < 4 || groups[2] < 0 {
				return []byte(r.substitute)
			}

			out := make([]byte, 0, len(match))
			out = append(out, match[:groups[2]]...)
			out = append(out, r.substitute...)
			out = append(out, match[groups[3]:]...)

			return out
		})
	}

	return line
}

// redactingWriter filters every handler write through the redactor. slog
// handlers emit one record per Write call, so line splitting is not needed.
type redactingWriter struct {
	out      io.Writer
	redactor *redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write(w.redactor.redact(p)); err != nil {
		return 0, err
	}

	// Report the original length; the handler must not see a short write
	// when redaction shrank the record.
	return len(p), nil
}
