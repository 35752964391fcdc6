package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ChannelSender is the part of *discordgo.Session the notifier needs.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts notices as embeds in one channel.
type DiscordNotifier struct {
	sender    ChannelSender
	channelID string
}

// NewDiscordNotifier returns a notifier posting to channelID.
func NewDiscordNotifier(sender ChannelSender, channelID string) *DiscordNotifier {
	return &DiscordNotifier{sender: sender, channelID: channelID}
}

// Notify posts n. The discordgo call does not take a context; ctx is
// passed through as a request option.
func (d *DiscordNotifier) Notify(ctx context.Context, n Notice) error {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       colour(n.Level),
	}
	if _, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("posting notice to discord: %w", err)
	}
	return nil
}

func colour(l Level) int {
	switch l {
	case LevelSuccess:
		return 0x2ecc71
	case LevelWarning:
		return 0xf1c40f
	case LevelError:
		return 0xe74c3c
	default:
		return 0x3498db
	}
}
