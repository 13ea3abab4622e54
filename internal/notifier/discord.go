package notifier

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/rs/zerolog/log"
)

type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(session *discordgo.Session, channelID string) *DiscordNotifier {
	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
	}
}

func (n *DiscordNotifier) NotifyManifestBuilt(ctx context.Context, m *domain.Manifest) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	_, err := n.session.ChannelMessageSend(n.channelID, manifestMessage(m), discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("channel", n.channelID).Msg("failed to send discord message")
		return err
	}
	return nil
}

func manifestMessage(m *domain.Manifest) string {
	nodes, meta, points := 0, 0, 0
	var count func([]domain.Category)
	count = func(cats []domain.Category) {
		for _, c := range cats {
			nodes++
			count(c.Children)
		}
	}
	count(m.Categories)
	for _, a := range m.Achievements {
		points += a.Points
		if a.IsMeta {
			meta++
		}
	}

	return fmt.Sprintf("📦 **Achievement manifest rebuilt**\n**Built:** %s\n**Categories:** %d (%d top-level)\n**Achievements:** %d (%d meta)\n**Total points:** %d",
		m.BuiltAt.Format("2006-01-02 15:04 MST"),
		nodes,
		len(m.Categories),
		len(m.Achievements),
		meta,
		points,
	)
}
