package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/itizir/emotepoll/dispatch"
	"github.com/itizir/emotepoll/registry"
	"github.com/itizir/emotepoll/tally"
)

const (
	// Discord rejects uploads above this for unboosted guilds.
	maxUploadBytes = 25 << 20
	// maxDescription stays under the embed description limit of 4096.
	maxDescription = 4000
	reactionPage   = 100
)

// discord implements the outbound side of the bot on a gateway session.
type discord struct {
	s *discordgo.Session
	// symbol is seeded on every new candidate post
	symbol string
	logger *slog.Logger
}

var (
	_ dispatch.Sink     = (*discord)(nil)
	_ tally.VoterSource = (*discord)(nil)
)

// noMentions keeps user supplied names from pinging anyone.
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

func (d *discord) SendText(ctx context.Context, channelID, body string) error {
	_, err := d.s.ChannelMessageSendComplex(channelID, textMessage(body), discordgo.WithContext(ctx))
	return err
}

func textMessage(body string) *discordgo.MessageSend {
	return &discordgo.MessageSend{Content: body, AllowedMentions: noMentions()}
}

func (d *discord) SendStats(ctx context.Context, channelID string, standings []registry.Standing) error {
	for _, m := range statsMessages(standings) {
		if _, err := d.s.ChannelMessageSendComplex(channelID, m, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func statsMessages(standings []registry.Standing) []*discordgo.MessageSend {
	var msgs []*discordgo.MessageSend
	for i, desc := range statsPages(standings) {
		title := "Emote votes"
		if i > 0 {
			title += " (continued)"
		}
		msgs = append(msgs, &discordgo.MessageSend{
			Embeds:          []*discordgo.MessageEmbed{{Title: title, Description: desc}},
			AllowedMentions: noMentions(),
		})
	}
	return msgs
}

// statsPages renders one line per standing, split so no page exceeds the
// embed description limit.
func statsPages(standings []registry.Standing) []string {
	var (
		pages []string
		b     strings.Builder
	)
	p := message.NewPrinter(language.English)
	for i, st := range standings {
		noun := "votes"
		if st.Votes == 1 {
			noun = "vote"
		}
		line := p.Sprintf("%d. **%s** - %d %s", i+1, st.Name, st.Votes, noun)
		if st.SubmitterName != "" {
			line += " (by " + st.SubmitterName + ")"
		}
		line += "\n"
		if b.Len() > 0 && b.Len()+len(line) > maxDescription {
			pages = append(pages, b.String())
			b.Reset()
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		pages = append(pages, b.String())
	}
	return pages
}

// PostCandidate re-uploads the image so the post outlives the original
// attachment, then seeds the vote reaction.
func (d *discord) PostCandidate(ctx context.Context, channelID string, post dispatch.CandidatePost) (string, error) {
	img, err := d.download(ctx, post.ImageURL)
	if err != nil {
		return "", fmt.Errorf("download attachment: %w", err)
	}

	msg, err := d.s.ChannelMessageSendComplex(channelID, candidateMessage(post, img), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}

	if d.symbol != "" {
		if err := d.s.MessageReactionAdd(channelID, msg.ID, d.symbol, discordgo.WithContext(ctx)); err != nil {
			d.logger.WarnContext(ctx, "could not seed vote reaction", "message", msg.ID, "error", err)
		}
	}
	return msg.ID, nil
}

func candidateMessage(post dispatch.CandidatePost, img []byte) *discordgo.MessageSend {
	filename := post.Filename
	if filename == "" {
		filename = "emote.png"
	}
	embed := &discordgo.MessageEmbed{
		Title: post.Name,
		Image: &discordgo.MessageEmbedImage{URL: "attachment://" + filename},
	}
	if post.SubmitterName != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Submitted by " + post.SubmitterName}
	}
	return &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		Files:           []*discordgo.File{{Name: filename, Reader: bytes.NewReader(img)}},
		AllowedMentions: noMentions(),
	}
}

func (d *discord) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxUploadBytes {
		return nil, errors.New("attachment too large to re-upload")
	}
	return b, nil
}

func (d *discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := d.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if isUnknownMessage(err) {
		return nil
	}
	return err
}

// MemberRoles prefers the gateway cache and falls back to REST.
func (d *discord) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if m, err := d.s.State.Member(guildID, userID); err == nil {
		return m.Roles, nil
	}
	m, err := d.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return m.Roles, nil
}

// Voters lists every user currently reacting with emoji on the message.
// emoji may be a unicode emoji or the bare name of a custom one.
func (d *discord) Voters(ctx context.Context, channelID, messageID, emoji string) ([]string, error) {
	msg, err := d.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if isUnknownMessage(err) {
		return nil, tally.ErrMessageGone
	}
	if err != nil {
		return nil, err
	}

	var apiName string
	for _, r := range msg.Reactions {
		if r.Emoji == nil {
			continue
		}
		if n := r.Emoji.APIName(); n == emoji || r.Emoji.Name == emoji {
			apiName = n
			break
		}
	}
	if apiName == "" {
		return nil, nil
	}

	var voters []string
	after := ""
	for {
		users, err := d.s.MessageReactions(channelID, messageID, apiName, reactionPage, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			voters = append(voters, u.ID)
		}
		if len(users) < reactionPage {
			return voters, nil
		}
		after = users[len(users)-1].ID
	}
}

func isUnknownMessage(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
