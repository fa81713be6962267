package receivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tonimelisma/gdpoller-go/internal/httpc"
)

// DefaultDiscordURL is the public API base; override for testing.
const DefaultDiscordURL = "https://discord.com/api"

// discordInterval is the webhook rate limit honoured by the endpoint gate.
const discordInterval = 1500 * time.Millisecond

// Embed is one Discord message embed.
type Embed struct {
	Color       string       `json:"color"`
	Author      EmbedAuthor  `json:"author"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Fields      []EmbedField `json:"fields"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
}

type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Discord posts messages through a single webhook.
type Discord struct {
	base         *url.URL
	webhookID    string
	webhookToken string
	session      *httpc.Session
	logger       *slog.Logger
}

var epDiscordWebhook = httpc.Endpoint{
	Method:   "POST",
	Path:     "/webhooks/{webhook_id}/{webhook_token}",
	Interval: discordInterval,
}

func NewDiscord(rawURL, webhookID, webhookToken string, session *httpc.Session, logger *slog.Logger) (*Discord, error) {
	if rawURL == "" {
		rawURL = DefaultDiscordURL
	}

	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("receivers: discord: %w", err)
	}

	return &Discord{
		base:         base,
		webhookID:    webhookID,
		webhookToken: webhookToken,
		session:      session,
		logger:       logger,
	}, nil
}

// Webhook posts one message with the given embeds. username defaults to
// "Activity Poller".
func (d *Discord) Webhook(ctx context.Context, username, content string, embeds []Embed) *httpc.Response {
	if username == "" {
		username = "Activity Poller"
	}

	body := map[string]any{"username": username}
	if len(embeds) > 0 {
		body["embeds"] = embeds
	}

	if content != "" {
		body["content"] = content
	}

	call := httpc.Call{
		JSON: body,
		Headers: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json, */*"},
		},
		Format: map[string]string{
			"webhook_id":    d.webhookID,
			"webhook_token": d.webhookToken,
		},
	}

	resp := d.session.Do(ctx, d.base, epDiscordWebhook, call)
	if !resp.OK() {
		d.logger.Error("discord webhook failed",
			slog.Int("status", resp.StatusCode),
			slog.String("content", resp.Content),
		)
	}

	return resp
}
