package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
)

// Discord delivers deploy outcomes as webhook embeds
type Discord struct {
	client webhook.Client
}

// NewDiscord creates a Discord notifier from a webhook URL
func NewDiscord(webhookURL string) (*Discord, error) {
	client, err := webhook.NewWithURL(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook client: %w", err)
	}
	return &Discord{client: client}, nil
}

// Notify implements Notifier
func (d *Discord) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	embed := buildEmbed(ev)
	if _, err := d.client.CreateEmbeds([]discord.Embed{embed}); err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	return nil
}

func buildEmbed(ev Event) discord.Embed {
	o := ev.Outcome
	b := discord.NewEmbedBuilder().
		AddField("Worker", fmt.Sprintf("`%s`", ev.Worker), true).
		AddField("Attempt", fmt.Sprintf("#%d", o.Seq), true).
		AddField("Duration", o.Duration.Round(100*time.Millisecond).String(), true).
		SetTimestamp(time.Now())

	switch {
	case !o.OK():
		msg := "unknown error"
		if o.Err != nil {
			msg = strings.SplitN(o.Err.Error(), "\n", 2)[0]
		}
		b = b.SetTitle("❌ Deploy Failed").
			SetDescription(fmt.Sprintf("```%s```", msg)).
			SetColor(0xE74C3C) // red
	case ev.Recovered:
		b = b.SetTitle("✅ Deploy Recovered").
			SetColor(0x2ECC71) // green
	default:
		b = b.SetTitle("🚀 Deploy Succeeded").
			SetColor(0x2ECC71) // green
	}

	if o.OK() && len(o.URLs) > 0 {
		b = b.AddField("URL", o.URLs[0], false)
	}
	if o.OK() && o.VersionID != "" {
		b = b.AddField("Version", fmt.Sprintf("`%s`", o.VersionID), false)
	}

	return b.Build()
}
