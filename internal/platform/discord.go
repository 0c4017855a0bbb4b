package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const historyPageSize = 100

const ticketAccess = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles

// Discord implements Platform on a discordgo session for one guild.
type Discord struct {
	session *discordgo.Session
	guildID string
	logger  *zap.Logger

	mu         sync.Mutex
	categories map[string]string
}

var _ Platform = (*Discord)(nil)

// NewDiscord wraps an opened session.
func NewDiscord(session *discordgo.Session, guildID string, logger *zap.Logger) *Discord {
	return &Discord{
		session:    session,
		guildID:    guildID,
		logger:     logger,
		categories: make(map[string]string),
	}
}

func (d *Discord) CreateTicketChannel(ctx context.Context, spec ChannelSpec) (Channel, error) {
	parentID, err := d.categoryID(ctx, spec.CategoryName)
	if err != nil {
		return Channel{}, fmt.Errorf("resolve category %q: %w", spec.CategoryName, err)
	}

	overwrites := []*discordgo.PermissionOverwrite{
		// the guild ID doubles as the @everyone role ID
		{ID: d.guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	if d.session.State != nil && d.session.State.User != nil {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    d.session.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketAccess | discordgo.PermissionManageChannels,
		})
	}
	for _, id := range spec.MemberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: id, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketAccess,
		})
	}
	for _, id := range spec.RoleIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketAccess,
		})
	}

	ch, err := d.session.GuildChannelCreateComplex(d.guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Channel{}, err
	}
	return Channel{ID: ch.ID, Name: ch.Name}, nil
}

// categoryID finds or creates the category channel named name.
func (d *Discord) categoryID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.categories[name]; ok {
		return id, nil
	}

	channels, err := d.session.GuildChannels(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			d.categories[name] = ch.ID
			return ch.ID, nil
		}
	}

	created, err := d.session.GuildChannelCreate(d.guildID, name, discordgo.ChannelTypeGuildCategory, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	d.logger.Info("created ticket category", zap.String("category", name), zap.String("channel_id", created.ID))
	d.categories[name] = created.ID
	return created.ID, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return ErrChannelNotFound
	}
	return err
}

func (d *Discord) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if channelID == "" {
		return false, nil
	}
	_, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Discord) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := d.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return ErrChannelNotFound
	}
	return err
}

func (d *Discord) SetMemberAccess(ctx context.Context, channelID, userID string, allow bool) error {
	var allowBits, denyBits int64
	if allow {
		allowBits = ticketAccess
	} else {
		denyBits = ticketAccess
	}
	err := d.session.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember,
		allowBits, denyBits, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return ErrChannelNotFound
	}
	return err
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) error {
	_, err := d.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if isNotFound(err) {
		return ErrChannelNotFound
	}
	return err
}

func (d *Discord) FetchHistory(ctx context.Context, channelID string) ([]HistoryMessage, error) {
	var (
		all    []*discordgo.Message
		before string
	)
	for {
		page, err := d.session.ChannelMessages(channelID, historyPageSize, before, "", "", discordgo.WithContext(ctx))
		if isNotFound(err) {
			return nil, ErrChannelNotFound
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < historyPageSize {
			break
		}
		before = page[len(page)-1].ID
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	history := make([]HistoryMessage, 0, len(all))
	for _, m := range all {
		author, isBot := "unknown", false
		if m.Author != nil {
			isBot = m.Author.Bot
			author = m.Author.Username
			if m.Author.GlobalName != "" {
				author = m.Author.GlobalName
			}
		}
		history = append(history, HistoryMessage{
			AuthorName:     author,
			AuthorIsBot:    isBot,
			Content:        m.Content,
			HasRichContent: len(m.Embeds) > 0 || len(m.Attachments) > 0,
			Timestamp:      m.Timestamp,
		})
	}
	return history, nil
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID string, msg Message) (string, error) {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := d.session.ChannelMessageSendComplex(ch.ID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (d *Discord) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	member, err := d.session.GuildMember(d.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}

func toMessageSend(msg Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     ToEmbeds(msg),
		Components: ToComponents(msg),
	}
}

// ToEmbeds renders the message embed, if any.
func ToEmbeds(msg Message) []*discordgo.MessageEmbed {
	if msg.Embed == nil {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       msg.Embed.Title,
		Description: msg.Embed.Description,
		Color:       msg.Embed.Color,
	}
	for _, f := range msg.Embed.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return []*discordgo.MessageEmbed{embed}
}

// ToComponents renders the message buttons, if any.
func ToComponents(msg Message) []discordgo.MessageComponent {
	if len(msg.Buttons) == 0 {
		return nil
	}
	return []discordgo.MessageComponent{ToActionsRow(msg.Buttons)}
}

// ToActionsRow renders buttons as one discordgo action row.
func ToActionsRow(buttons []Button) discordgo.ActionsRow {
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		btn := discordgo.Button{
			Label:    b.Label,
			CustomID: b.CustomID,
			Style:    buttonStyle(b.Style),
		}
		if b.Emoji != "" {
			btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
		}
		row.Components = append(row.Components, btn)
	}
	return row
}

func buttonStyle(s ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case ButtonSecondary:
		return discordgo.SecondaryButton
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
			return true
		}
	}
	return strings.Contains(err.Error(), "Unknown Channel")
}
