// Package platformtest provides an in-memory Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/carrydesk/carry-desk/internal/platform"
)

// SentMessage records one delivered message.
type SentMessage struct {
	ChannelID string
	Message   platform.Message
}

// FakeChannel is the fake's view of a created channel.
type FakeChannel struct {
	ID       string
	Spec     platform.ChannelSpec
	Name     string
	Access   map[string]bool
	Messages []platform.HistoryMessage
}

// Fake is a concurrency-safe Platform double. Set the Fail* fields to
// inject collaborator errors.
type Fake struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*FakeChannel
	deleted  []string
	sent     []SentMessage
	dms      map[string][]platform.Message
	roles    map[string][]string

	FailCreate  error
	FailHistory error
	FailDM      error
	FailDelete  error
}

var _ platform.Platform = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		channels: make(map[string]*FakeChannel),
		dms:      make(map[string][]platform.Message),
		roles:    make(map[string][]string),
	}
}

// SetRoles assigns platform roles to a user.
func (f *Fake) SetRoles(userID string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = roles
}

// Seed appends history to a channel.
func (f *Fake) Seed(channelID string, msgs ...platform.HistoryMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		ch.Messages = append(ch.Messages, msgs...)
	}
}

// Vanish removes a channel as if it was deleted out of band.
func (f *Fake) Vanish(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
}

// Channel returns a copy of the channel state.
func (f *Fake) Channel(channelID string) (FakeChannel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return FakeChannel{}, false
	}
	cp := *ch
	cp.Access = make(map[string]bool, len(ch.Access))
	for k, v := range ch.Access {
		cp.Access[k] = v
	}
	return cp, true
}

// ChannelCount reports live channels.
func (f *Fake) ChannelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// Deleted lists channel IDs passed to DeleteChannel, in order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Sent lists channel messages, in order.
func (f *Fake) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// SentTo lists messages sent to one channel.
func (f *Fake) SentTo(channelID string) []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.Message
	for _, s := range f.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Message)
		}
	}
	return out
}

// DMs lists direct messages to a user.
func (f *Fake) DMs(userID string) []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Message(nil), f.dms[userID]...)
}

func (f *Fake) CreateTicketChannel(_ context.Context, spec platform.ChannelSpec) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return platform.Channel{}, f.FailCreate
	}
	f.nextID++
	id := fmt.Sprintf("chan-%d", f.nextID)
	access := make(map[string]bool)
	for _, m := range spec.MemberIDs {
		access[m] = true
	}
	f.channels[id] = &FakeChannel{ID: id, Spec: spec, Name: spec.Name, Access: access}
	return platform.Channel{ID: id, Name: spec.Name}, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	if f.FailDelete != nil {
		return f.FailDelete
	}
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrChannelNotFound
	}
	delete(f.channels, channelID)
	return nil
}

func (f *Fake) ChannelExists(_ context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[channelID]
	return ok, nil
}

func (f *Fake) RenameChannel(_ context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return platform.ErrChannelNotFound
	}
	ch.Name = name
	return nil
}

func (f *Fake) SetMemberAccess(_ context.Context, channelID, userID string, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return platform.ErrChannelNotFound
	}
	ch.Access[userID] = allow
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMessage{ChannelID: channelID, Message: msg})
	return nil
}

func (f *Fake) FetchHistory(_ context.Context, channelID string) ([]platform.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailHistory != nil {
		return nil, f.FailHistory
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, platform.ErrChannelNotFound
	}
	return append([]platform.HistoryMessage(nil), ch.Messages...), nil
}

func (f *Fake) SendDirectMessage(_ context.Context, userID string, msg platform.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDM != nil {
		return "", f.FailDM
	}
	f.dms[userID] = append(f.dms[userID], msg)
	return "dm-" + userID, nil
}

func (f *Fake) MemberRoles(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roles[userID]...), nil
}
