// Package bot routes Discord interactions to the ticket, carry and
// feedback services.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/service"
)

const interactionTimeout = 30 * time.Second

// Responder is the part of a discordgo session used to answer
// interactions.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Dependencies wires the router.
type Dependencies struct {
	Tickets  *service.TicketService
	Carries  *service.CarryService
	Feedback *service.FeedbackService
	Roles    *auth.CapabilityResolver
	Platform platform.Platform
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Bot handles interactions. Each interaction runs in isolation: errors
// and panics end up as an ephemeral reply, never as a crash.
type Bot struct {
	tickets  *service.TicketService
	carries  *service.CarryService
	feedback *service.FeedbackService
	roles    *auth.CapabilityResolver
	platform platform.Platform
	logger   *zap.Logger
	metrics  *observability.Metrics

	commands   map[string]commandHandler
	components map[string]componentHandler
	forms      map[string]componentHandler
}

// New builds the router.
func New(deps Dependencies) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		tickets:  deps.Tickets,
		carries:  deps.Carries,
		feedback: deps.Feedback,
		roles:    deps.Roles,
		platform: deps.Platform,
		logger:   logger,
		metrics:  deps.Metrics,
	}
	b.commands = b.commandHandlers()
	b.components = b.componentHandlers()
	b.forms = b.formHandlers()
	return b
}

// Attach subscribes the router to session interactions.
func (b *Bot) Attach(session *discordgo.Session) func() {
	return session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()
		b.Handle(ctx, s, ic.Interaction)
	})
}

// RegisterCommands publishes the slash commands for the guild. It runs
// once during startup and its error aborts the boot.
func (b *Bot) RegisterCommands(session *discordgo.Session, guildID string) error {
	if session.State == nil || session.State.User == nil {
		return fmt.Errorf("register commands: session is not open")
	}
	registered, err := session.ApplicationCommandBulkOverwrite(session.State.User.ID, guildID, Commands())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info("slash commands registered", zap.Int("count", len(registered)), zap.String("guild_id", guildID))
	return nil
}

// request is one interaction being handled.
type request struct {
	ctx         context.Context
	interaction *discordgo.Interaction
	responder   Responder
	actor       domain.Actor
	args        []string
	deferred    bool
}

type (
	commandHandler   func(r *request, data discordgo.ApplicationCommandInteractionData) error
	componentHandler func(r *request) error
)

// Handle dispatches one interaction.
func (b *Bot) Handle(ctx context.Context, responder Responder, i *discordgo.Interaction) {
	action := "unknown"
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("interaction panic",
				zap.String("action", action),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			b.metrics.RecordInteraction(action, "panic")
			_ = replyText(responder, i, "Something went wrong while processing your request.")
		}
	}()

	r := &request{ctx: ctx, interaction: i, responder: responder}
	var handler func() error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		action = data.Name
		if h, ok := b.commands[data.Name]; ok {
			handler = func() error { return h(r, data) }
		}
	case discordgo.InteractionMessageComponent:
		var a string
		a, r.args = service.ParseControlID(i.MessageComponentData().CustomID)
		action = a
		if h, ok := b.components[a]; ok {
			handler = func() error { return h(r) }
		}
	case discordgo.InteractionModalSubmit:
		var a string
		a, r.args = service.ParseControlID(i.ModalSubmitData().CustomID)
		action = a
		if h, ok := b.forms[a]; ok {
			handler = func() error { return h(r) }
		}
	}
	if handler == nil {
		b.logger.Warn("unhandled interaction", zap.String("action", action), zap.Int("type", int(i.Type)))
		b.metrics.RecordInteraction(action, "unhandled")
		_ = replyText(responder, i, "This control is no longer available.")
		return
	}

	actor, err := b.resolveActor(ctx, i)
	if err != nil {
		b.logger.Warn("resolve actor failed", zap.String("action", action), zap.Error(err))
	}
	r.actor = actor

	if err := handler(); err != nil {
		b.metrics.RecordInteraction(action, "error")
		b.logger.Info("interaction rejected",
			zap.String("action", action),
			zap.String("user_id", actor.ID),
			zap.Error(err))
		var rerr error
		if r.deferred {
			rerr = followUp(responder, i, "❌ "+errorText(err))
		} else {
			rerr = replyError(responder, i, err)
		}
		if rerr != nil {
			b.logger.Warn("error reply failed", zap.String("action", action), zap.Error(rerr))
		}
		return
	}
	b.metrics.RecordInteraction(action, "ok")
}

// resolveActor folds the caller's guild roles into capabilities. DM
// interactions carry no member, so roles are looked up.
func (b *Bot) resolveActor(ctx context.Context, i *discordgo.Interaction) (domain.Actor, error) {
	user := interactionUser(i)
	if user == nil {
		return domain.Actor{}, fmt.Errorf("interaction has no user")
	}
	actor := domain.Actor{ID: user.ID, Name: displayName(i.Member, user)}

	var roles []string
	if i.Member != nil {
		roles = i.Member.Roles
	} else if b.platform != nil {
		var err error
		if roles, err = b.platform.MemberRoles(ctx, user.ID); err != nil {
			return actor, err
		}
	}
	if b.roles != nil {
		actor.Capabilities = b.roles.Resolve(roles)
	}
	return actor, nil
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
