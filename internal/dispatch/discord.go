package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/receivers"
)

// maxFieldLen is Discord's per-field character limit.
const maxFieldLen = 1024

// defaultColors maps actions to embed colors; unknown actions use "default".
var defaultColors = map[string]string{
	"default":             "0",
	activity.ActionMove:   "3447003",
	activity.ActionCreate: "5763719",
	activity.ActionDelete: "15548997",
	activity.ActionEdit:   "16776960",
}

// Discord posts one embed per event to a webhook.
type Discord struct {
	base
	client *receivers.Discord
	colors map[string]string
}

func NewDiscord(url, webhookID, webhookToken string, colors map[string]string, mappings []string, session *httpc.Session, logger *slog.Logger) (*Discord, error) {
	b, err := newBase("DiscordDispatcher", mappings, logger)
	if err != nil {
		return nil, err
	}

	client, err := receivers.NewDiscord(url, webhookID, webhookToken, session, logger)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(defaultColors)+len(colors))
	for action, color := range defaultColors {
		merged[action] = color
	}

	for action, color := range colors {
		merged[action] = color
	}

	return &Discord{base: b, client: client, colors: merged}, nil
}

func (d *Discord) Dispatch(ctx context.Context, event *activity.Event) error {
	color, ok := d.colors[event.Action]
	if !ok {
		color = d.colors["default"]
	}

	fields := []receivers.EmbedField{
		{Name: "Path", Value: truncateField(event.Path)},
	}

	switch {
	case event.Action == activity.ActionMove:
		from := event.RemovedPath
		if from == "" {
			from = "unknown"
		}

		fields = append(fields, receivers.EmbedField{Name: "From", Value: truncateField(from)})

	case event.Detail != "":
		fields = append(fields, receivers.EmbedField{Name: "Details", Value: truncateField(event.Detail)})
	}

	fields = append(fields,
		receivers.EmbedField{Name: "ID", Value: truncateField(event.Target.ID())},
		receivers.EmbedField{Name: "MIME", Value: truncateField(event.Target.MimeType)},
		receivers.EmbedField{Name: "Link", Value: truncateField(event.Link)},
		receivers.EmbedField{Name: "Occurred at", Value: truncateField(event.TimestampText)},
	)

	embed := receivers.Embed{
		Color:       color,
		Author:      receivers.EmbedAuthor{Name: event.Poller},
		Title:       event.Target.Title,
		Description: "# " + strings.ToUpper(event.Action),
		Fields:      fields,
	}

	resp := d.client.Webhook(ctx, "", "", []receivers.Embed{embed})
	d.logger.Info("discord dispatch",
		slog.String("target", event.Target.Title),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

func truncateField(content string) string {
	if len(content) > maxFieldLen {
		return content[:maxFieldLen-3] + "..."
	}

	return content
}
