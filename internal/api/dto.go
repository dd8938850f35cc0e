package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/tickvox/internal/settings"
)

// commandRequest is the body of POST /api/voice/command.
type commandRequest struct {
	Type            string         `json:"type" validate:"required,oneof=audio text"`
	Content         string         `json:"content" validate:"required"`
	Format          string         `json:"format" validate:"omitempty,max=64"`
	Context         map[string]any `json:"context"`
	RequireWakeWord bool           `json:"requireWakeWord"`
}

// settingsRequest is the body of PUT /api/voice/settings. Numeric fields
// are clamped by the store, not rejected here.
type settingsRequest struct {
	WakeWord               *string                 `json:"wakeWord" validate:"omitempty,min=1,max=64"`
	Sensitivity            *float64                `json:"sensitivity"`
	VoiceActivationEnabled *bool                   `json:"voiceActivationEnabled"`
	VoiceType              *string                 `json:"voiceType" validate:"omitempty,voicetype"`
	VoiceSpeed             *float64                `json:"voiceSpeed"`
	CustomCommands         *[]customCommandRequest `json:"customCommands" validate:"omitempty,max=50,dive"`
	Privacy                *settings.PrivacyPatch  `json:"privacy"`
}

type customCommandRequest struct {
	Phrase   string         `json:"phrase" validate:"required,max=200"`
	Action   string         `json:"action" validate:"required,max=64"`
	Entities map[string]any `json:"entities"`
}

func (r settingsRequest) patch() settings.Patch {
	p := settings.Patch{
		WakeWord:               r.WakeWord,
		Sensitivity:            r.Sensitivity,
		VoiceActivationEnabled: r.VoiceActivationEnabled,
		VoiceType:              r.VoiceType,
		VoiceSpeed:             r.VoiceSpeed,
		Privacy:                r.Privacy,
	}
	if r.CustomCommands != nil {
		cmds := make([]settings.CustomCommand, len(*r.CustomCommands))
		for i, c := range *r.CustomCommands {
			cmds[i] = settings.CustomCommand{Phrase: c.Phrase, Action: c.Action, Entities: c.Entities}
		}
		p.CustomCommands = &cmds
	}
	return p
}

// voiceTestRequest is the body of POST /api/voice/test.
type voiceTestRequest struct {
	Text    string   `json:"text" validate:"required,max=500"`
	VoiceID string   `json:"voiceId" validate:"omitempty,voicetype"`
	Speed   *float64 `json:"speed" validate:"omitempty,gte=0.5,lte=2"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Names in messages follow the JSON field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("voicetype", func(fl validator.FieldLevel) bool {
		return settings.IsVoiceType(fl.Field().String())
	})
	return v
}

// validationMessage turns the first validation failure into a short
// client-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "voicetype":
		return fmt.Sprintf("Unknown voice type: %v", fe.Value())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	case "min":
		return fmt.Sprintf("%s is too short", fe.Field())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
