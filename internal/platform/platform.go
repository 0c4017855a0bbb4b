// Package platform defines the chat platform capabilities the ticket and
// carry services depend on.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound is returned when a channel handle no longer resolves.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelSpec describes a private ticket channel.
type ChannelSpec struct {
	Name         string
	CategoryName string
	// MemberIDs and RoleIDs receive view, send and history access.
	MemberIDs []string
	RoleIDs   []string
}

// Channel is a created channel handle.
type Channel struct {
	ID   string
	Name string
}

// ButtonStyle selects the visual weight of a button.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interactive control attached to a message.
type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    ButtonStyle
}

// EmbedField is a name/value pair rendered inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

// Message is an outbound message. Buttons are laid out in one row.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button
}

// HistoryMessage is one message read back from a channel.
type HistoryMessage struct {
	AuthorName  string
	AuthorIsBot bool
	Content     string
	// HasRichContent is set for embeds or attachments.
	HasRichContent bool
	Timestamp      time.Time
}

// Platform is everything the services ask of the chat platform.
type Platform interface {
	CreateTicketChannel(ctx context.Context, spec ChannelSpec) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	SetMemberAccess(ctx context.Context, channelID, userID string, allow bool) error
	SendMessage(ctx context.Context, channelID string, msg Message) error
	// FetchHistory returns the full channel history, oldest first.
	FetchHistory(ctx context.Context, channelID string) ([]HistoryMessage, error)
	SendDirectMessage(ctx context.Context, userID string, msg Message) (string, error)
	MemberRoles(ctx context.Context, userID string) ([]string, error)
}
