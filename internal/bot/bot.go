// Package bot runs the Discord admin console and posts auction notices.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/cricket-auction/internal/bot/commands"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/notify"
)

// ErrNoToken is returned by New when the bot token is empty.
var ErrNoToken = errors.New("discord token is empty")

// Bot wraps the Discord session and command handlers.
type Bot struct {
	session  *discordgo.Session
	cfg      config.DiscordConfig
	logger   *slog.Logger
	handlers *commands.Handlers
	cmds     []*discordgo.ApplicationCommand
}

// New creates a Bot serving handlers. The session is not opened until
// Start, but Notifier works right away.
func New(cfg config.DiscordConfig, handlers *commands.Handlers, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session:  session,
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
	}, nil
}

// Notifier posts notices to the configured channel. It returns nil when
// no channel is configured.
func (b *Bot) Notifier() notify.Notifier {
	if b.cfg.NoticeChannelID == "" {
		return nil
	}
	return notify.NewDiscordNotifier(b.session, b.cfg.NoticeChannelID)
}

// Start opens the Discord connection and registers slash commands.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.InfoContext(ctx, "console is ready",
			slog.String("user", r.User.Username),
			slog.String("guild_id", b.cfg.GuildID),
			slog.Int("guilds", len(r.Guilds)),
		)
	})

	b.session.AddHandler(b.handlers.InteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, commands.SlashCommands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.cmds = registered

	b.logger.InfoContext(ctx, "slash commands registered", slog.Int("count", len(registered)))
	return nil
}

// Stop removes the slash commands so a standby replica can register its
// own, then closes the Discord connection.
func (b *Bot) Stop(ctx context.Context) error {
	for _, cmd := range b.cmds {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.cfg.GuildID, cmd.ID, discordgo.WithContext(ctx)); err != nil {
			b.logger.ErrorContext(ctx, "failed to delete command", slog.String("command", cmd.Name), slog.Any("error", err))
		}
	}
	b.cmds = nil
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("closing discord session: %w", err)
	}
	return nil
}
