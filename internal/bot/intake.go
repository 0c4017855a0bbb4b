package bot

import (
	"fmt"
	"strings"

	"github.com/carrydesk/carry-desk/internal/domain"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

var errIncompleteForm = apperrors.NewValidationError("the form is missing a required answer", nil)

const (
	fieldIGN      = "ign"
	fieldFloor    = "floor"
	fieldSlayer   = "slayer"
	fieldTier     = "tier"
	fieldQuantity = "quantity"
	fieldNotes    = "notes"
)

// intakeField is one question of a ticket form; heading labels the answer
// in the ticket details.
type intakeField struct {
	modalField
	heading string
}

// intakeForm is the modal a category asks its questions with.
type intakeForm struct {
	title  string
	fields []intakeField
}

var (
	ignField = intakeField{
		modalField: modalField{id: fieldIGN, label: "What's your In-Game Name?", placeholder: "Enter your Minecraft username...", required: true, maxLength: 16},
		heading:    "In-Game Name",
	}
	quantityField = intakeField{
		modalField: modalField{id: fieldQuantity, label: "How many carries do you want? (Quantity)", placeholder: "Enter number of carries...", required: true, maxLength: 10},
		heading:    "Quantity",
	}
	notesField = intakeField{
		modalField: modalField{id: fieldNotes, label: "Any additional note? (Not required)", placeholder: "Any special requirements or notes...", paragraph: true, maxLength: 500},
		heading:    "Additional Notes",
	}
)

var intakeForms = map[domain.Category]intakeForm{
	domain.CategoryDungeonCarry: {
		title: "🏰 Dungeon Carry Request",
		fields: []intakeField{
			ignField,
			{
				modalField: modalField{id: fieldFloor, label: "Which dungeon floor do you want?", placeholder: "e.g., Floor 7, Master 5, etc...", required: true, maxLength: 50},
				heading:    "Dungeon Floor",
			},
			quantityField,
			notesField,
		},
	},
	domain.CategorySlayerCarry: {
		title: "⚔️ Slayer Carry Request",
		fields: []intakeField{
			ignField,
			{
				modalField: modalField{id: fieldSlayer, label: "Which slayer do you want?", placeholder: "e.g., Revenant Horror, Voidgloom Seraph, etc...", required: true, maxLength: 50},
				heading:    "Slayer Type",
			},
			{
				modalField: modalField{id: fieldTier, label: "Which tier do you want?", placeholder: "e.g., Tier 3, Tier 4, etc...", required: true, maxLength: 20},
				heading:    "Tier",
			},
			quantityField,
			notesField,
		},
	},
}

// intakeFor returns the form for a category. Categories without a
// structured form, and unknown ones, ask a single free-text question.
func intakeFor(category string) intakeForm {
	if c, ok := domain.ParseCategory(category); ok {
		if form, ok := intakeForms[c]; ok {
			return form
		}
	}
	return intakeForm{
		title: category,
		fields: []intakeField{{
			modalField: modalField{
				id:          fieldDetails,
				label:       "What do you need?",
				placeholder: "Describe your request",
				paragraph:   true,
				required:    true,
				maxLength:   1000,
			},
		}},
	}
}

func (f intakeForm) modalFields() []modalField {
	out := make([]modalField, len(f.fields))
	for i, field := range f.fields {
		out[i] = field.modalField
	}
	return out
}

// details renders the submitted answers, one "**Heading:** value" line per
// question under the form title. Free-text forms pass the answer through.
func (f intakeForm) details(values map[string]string) (string, error) {
	if len(f.fields) == 1 && f.fields[0].heading == "" {
		return values[f.fields[0].id], nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**", f.title)
	for _, field := range f.fields {
		value := values[field.id]
		if value == "" {
			if field.required {
				return "", errIncompleteForm.WithDetails(map[string]any{"hint": "Missing: " + field.heading})
			}
			value = "None"
		}
		fmt.Fprintf(&sb, "\n**%s:** %s", field.heading, value)
	}
	return sb.String(), nil
}
