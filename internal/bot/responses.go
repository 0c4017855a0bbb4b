package bot

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/carrydesk/carry-desk/internal/platform"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

const maxListedOptions = 20

func replyText(r Responder, i *discordgo.Interaction, text string) error {
	return replyMessage(r, i, platform.Message{Content: text})
}

func replyMessage(r Responder, i *discordgo.Interaction, msg platform.Message) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    msg.Content,
			Embeds:     platform.ToEmbeds(msg),
			Components: platform.ToComponents(msg),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

// deferReply acknowledges a slow interaction; the answer follows through
// followUp.
func deferReply(r Responder, i *discordgo.Interaction) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func followUp(r Responder, i *discordgo.Interaction, text string) error {
	_, err := r.FollowupMessageCreate(i, false, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

func replyError(r Responder, i *discordgo.Interaction, err error) error {
	return replyText(r, i, "❌ "+errorText(err))
}

// errorText renders err for the user, listing the accepted values when
// the error carries them.
func errorText(err error) string {
	text := apperrors.UserMessage(err)
	de := apperrors.ToDomainError(err)
	if de == nil || de.Details == nil {
		return text
	}
	if valid, ok := de.Details["valid"]; ok {
		text += "\nValid options: " + joinValues(valid)
	}
	if hint, ok := de.Details["hint"].(string); ok {
		text += "\n" + hint
	}
	if retry, ok := de.Details["retry_after"].(string); ok {
		text += fmt.Sprintf("\nTry again in %s.", retry)
	}
	return text
}

func joinValues(v any) string {
	var items []string
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		for idx := 0; idx < rv.Len(); idx++ {
			items = append(items, fmt.Sprint(rv.Index(idx).Interface()))
		}
	} else {
		items = []string{fmt.Sprint(v)}
	}
	if len(items) > maxListedOptions {
		items = append(items[:maxListedOptions:maxListedOptions], "…")
	}
	return strings.Join(items, ", ")
}

type modalField struct {
	id          string
	label       string
	placeholder string
	paragraph   bool
	required    bool
	maxLength   int
}

func openModal(r Responder, i *discordgo.Interaction, customID, title string, fields ...modalField) error {
	rows := make([]discordgo.MessageComponent, 0, len(fields))
	for _, f := range fields {
		style := discordgo.TextInputShort
		if f.paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    f.id,
				Label:       f.label,
				Style:       style,
				Placeholder: f.placeholder,
				Required:    f.required,
				MaxLength:   f.maxLength,
			},
		}})
	}
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	})
}

// formValues flattens the text inputs of a submitted modal.
func formValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok {
				values[input.CustomID] = strings.TrimSpace(input.Value)
			}
		}
	}
	return values
}
