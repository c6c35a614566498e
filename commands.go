package main

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/itizir/emotepoll/dispatch"
)

type enqueuer interface {
	Enqueue(ev dispatch.Event) bool
}

// addHandlers translates gateway events into dispatcher events. Handlers do
// no work of their own so the gateway reader is never blocked on REST calls.
func addHandlers(s *discordgo.Session, q enqueuer) {
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if ev, ok := messageEvent(m); ok {
			enqueue(q, ev)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		enqueue(q, reactionAddedEvent(r))
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		enqueue(q, reactionRemovedEvent(r))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		enqueue(q, dispatch.MessageDeleted{MessageID: m.ID, GuildID: m.GuildID, ChannelID: m.ChannelID})
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
		for _, id := range m.Messages {
			enqueue(q, dispatch.MessageDeleted{MessageID: id, GuildID: m.GuildID, ChannelID: m.ChannelID})
		}
	})
}

func enqueue(q enqueuer, ev dispatch.Event) {
	if !q.Enqueue(ev) {
		guildID, channelID := ev.Channel()
		slog.Warn("event dropped", "type", ev.Type(), "guild", guildID, "channel", channelID)
	}
}

// messageEvent returns false for messages the bot must never act on.
func messageEvent(m *discordgo.MessageCreate) (dispatch.MessageReceived, bool) {
	if m.Author == nil || m.Author.Bot {
		return dispatch.MessageReceived{}, false
	}

	ev := dispatch.MessageReceived{
		ID:         m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: displayName(m.Author, m.Member),
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		Text:       m.Content,
	}
	if m.Member != nil {
		ev.Roles = append([]string{}, m.Member.Roles...)
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, dispatch.Attachment{
			URL:      a.URL,
			Filename: a.Filename,
			Size:     a.Size,
			Width:    a.Width,
			Height:   a.Height,
		})
	}
	return ev, true
}

func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func reactionAddedEvent(r *discordgo.MessageReactionAdd) dispatch.ReactionAdded {
	return dispatch.ReactionAdded{
		MessageID: r.MessageID,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		ReactorID: r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
}

func reactionRemovedEvent(r *discordgo.MessageReactionRemove) dispatch.ReactionRemoved {
	return dispatch.ReactionRemoved{
		MessageID: r.MessageID,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		ReactorID: r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
}
