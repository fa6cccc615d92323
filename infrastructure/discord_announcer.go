package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kuji/events"
	"kuji/models"
)

const colorWinner = 0xF1C40F

// EmbedSender is the slice of *discordgo.Session the announcer needs
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAnnouncer posts each winning draw to a Discord channel
type DiscordAnnouncer struct {
	sender    EmbedSender
	channelID string
	sub       *events.Subscription
}

// NewDiscordSession opens a bot session
func NewDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}
	return session, nil
}

// NewDiscordAnnouncer creates an announcer posting to channelID
func NewDiscordAnnouncer(sender EmbedSender, channelID string) *DiscordAnnouncer {
	return &DiscordAnnouncer{
		sender:    sender,
		channelID: channelID,
	}
}

// Start subscribes the announcer to draws on every board
func (a *DiscordAnnouncer) Start(bus *events.Bus) {
	a.sub = bus.Subscribe(events.EventTypeDrawEventCreated, uuid.Nil, a.handle)
}

// Stop unsubscribes the announcer
func (a *DiscordAnnouncer) Stop(bus *events.Bus) {
	if a.sub != nil {
		bus.Unsubscribe(a.sub)
		a.sub = nil
	}
}

func (a *DiscordAnnouncer) handle(ctx context.Context, e events.Event) {
	// the instance that committed the draw announces it
	if events.IsRemote(ctx) {
		return
	}
	draw, ok := e.(events.DrawEventCreatedEvent)
	if !ok || draw.PrizeTier == models.BlankTier {
		return
	}

	if _, err := a.sender.ChannelMessageSendEmbed(a.channelID, winnerEmbed(draw)); err != nil {
		log.WithFields(log.Fields{
			"board_id":      draw.BoardID,
			"draw_event_id": draw.DrawEventID,
			"error":         err,
		}).Error("Failed to announce draw on Discord")
	}
}

func winnerEmbed(draw events.DrawEventCreatedEvent) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎉 %s", draw.ViewerName),
		Color:       colorWinner,
		Description: fmt.Sprintf("%s %s", draw.PrizeTier, draw.PrizeName),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Board",
				Value:  draw.BoardTitle,
				Inline: true,
			},
		},
		Timestamp: draw.CreatedAt.UTC().Format(time.RFC3339),
	}
}
