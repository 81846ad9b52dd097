package notifier

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/observe-api/internal/models"
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

// NewDiscordSession creates a bot session for token.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}
	return discordgo.New("Bot " + token)
}

func (n *DiscordNotifier) NotifyBadge(badge models.Badge, userID string, achievedAt time.Time) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	_, err := n.session.ChannelMessageSend(n.channelID, BadgeMessage(badge, userID, achievedAt))
	return err
}

// BadgeMessage renders the announcement of a newly earned badge.
func BadgeMessage(badge models.Badge, userID string, achievedAt time.Time) string {
	name := badge.Name
	if name == "" {
		name = fmt.Sprintf("#%d", badge.ID)
	}

	message := fmt.Sprintf("🏅 **New Badge**\n**User:** %s\n**Badge:** %s\n**Achieved:** %s",
		userID,
		name,
		achievedAt.UTC().Format(time.RFC3339),
	)
	if badge.Image != "" {
		message += "\n" + badge.Image
	}
	return message
}
