// Package settings holds per-user voice configuration: the wake word and its
// sensitivity, the synthesis voice, custom command phrases and the privacy
// policy applied to command history.
//
// Settings are never created by a read. [Store.Get] falls back to
// [Defaults] for users that have not saved anything, [Store.Update] merges a
// [Patch] onto the stored (or default) value, and [Store.Reset] replaces the
// stored value with the defaults.
package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrPersistence marks failures of the backing store. Errors returned by
// [Store] implementations wrap it so callers can tell storage faults apart
// from invalid input.
var ErrPersistence = errors.New("settings: persistence failure")

// ErrInvalid is returned by [Apply] when a patch cannot be applied.
var ErrInvalid = errors.New("settings: invalid patch")

// Value ranges enforced by [Clamp].
const (
	MinSensitivity = 0.1
	MaxSensitivity = 1.0
	MinVoiceSpeed  = 0.5
	MaxVoiceSpeed  = 2.0

	minRetentionDays = 1
	maxRetentionDays = 3650
)

// voiceTypes is the static catalogue returned by [ListVoiceTypes].
var voiceTypes = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// VoiceSettings is one user's voice configuration.
type VoiceSettings struct {
	WakeWord               string          `json:"wakeWord"`
	Sensitivity            float64         `json:"sensitivity"`
	VoiceActivationEnabled bool            `json:"voiceActivationEnabled"`
	VoiceType              string          `json:"voiceType"`
	VoiceSpeed             float64         `json:"voiceSpeed"`
	CustomCommands         []CustomCommand `json:"customCommands"`
	Privacy                Privacy         `json:"privacy"`

	// UpdatedAt is zero for settings that were never stored.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// CustomCommand maps a spoken phrase to an intent, bypassing interpretation
// when the phrase is recognised.
type CustomCommand struct {
	Phrase string `json:"phrase"`
	// Action is the intent dispatched when Phrase matches.
	Action string `json:"action"`
	// Entities are passed to the intent handler unchanged.
	Entities map[string]any `json:"entities,omitempty"`
}

// Privacy controls what the command history keeps.
type Privacy struct {
	StoreHistory         bool `json:"storeHistory"`
	HistoryRetentionDays int  `json:"historyRetentionDays"`
	FilterSensitiveInfo  bool `json:"filterSensitiveInfo"`
}

// Defaults returns the settings used for users without a stored record. Each
// call returns a fresh value.
func Defaults() VoiceSettings {
	return VoiceSettings{
		WakeWord:               "Hey Assistant",
		Sensitivity:            0.7,
		VoiceActivationEnabled: false,
		VoiceType:              "alloy",
		VoiceSpeed:             1.0,
		CustomCommands:         []CustomCommand{},
		Privacy: Privacy{
			StoreHistory:         true,
			HistoryRetentionDays: 30,
			FilterSensitiveInfo:  true,
		},
	}
}

// ListVoiceTypes returns the supported synthesis voice identities.
func ListVoiceTypes() []string {
	return slices.Clone(voiceTypes)
}

// IsVoiceType reports whether id is in the voice catalogue.
func IsVoiceType(id string) bool {
	return slices.Contains(voiceTypes, id)
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	WakeWord               *string          `json:"wakeWord,omitempty"`
	Sensitivity            *float64         `json:"sensitivity,omitempty"`
	VoiceActivationEnabled *bool            `json:"voiceActivationEnabled,omitempty"`
	VoiceType              *string          `json:"voiceType,omitempty"`
	VoiceSpeed             *float64         `json:"voiceSpeed,omitempty"`
	CustomCommands         *[]CustomCommand `json:"customCommands,omitempty"`
	Privacy                *PrivacyPatch    `json:"privacy,omitempty"`
}

// PrivacyPatch is a partial update of [Privacy].
type PrivacyPatch struct {
	StoreHistory         *bool `json:"storeHistory,omitempty"`
	HistoryRetentionDays *int  `json:"historyRetentionDays,omitempty"`
	FilterSensitiveInfo  *bool `json:"filterSensitiveInfo,omitempty"`
}

// Apply merges p onto base and clamps the result. base is not modified.
func Apply(base VoiceSettings, p Patch) (VoiceSettings, error) {
	out := base
	out.CustomCommands = slices.Clone(base.CustomCommands)

	if p.WakeWord != nil {
		ww := strings.Join(strings.Fields(*p.WakeWord), " ")
		if ww == "" {
			return VoiceSettings{}, fmt.Errorf("%w: wake word must not be empty", ErrInvalid)
		}
		out.WakeWord = ww
	}
	if p.Sensitivity != nil {
		out.Sensitivity = *p.Sensitivity
	}
	if p.VoiceActivationEnabled != nil {
		out.VoiceActivationEnabled = *p.VoiceActivationEnabled
	}
	if p.VoiceType != nil {
		out.VoiceType = *p.VoiceType
	}
	if p.VoiceSpeed != nil {
		out.VoiceSpeed = *p.VoiceSpeed
	}
	if p.CustomCommands != nil {
		cmds := make([]CustomCommand, 0, len(*p.CustomCommands))
		for i, c := range *p.CustomCommands {
			c.Phrase = strings.TrimSpace(c.Phrase)
			c.Action = strings.TrimSpace(c.Action)
			if c.Phrase == "" || c.Action == "" {
				return VoiceSettings{}, fmt.Errorf("%w: custom command %d needs a phrase and an action", ErrInvalid, i)
			}
			cmds = append(cmds, c)
		}
		out.CustomCommands = cmds
	}
	if pp := p.Privacy; pp != nil {
		if pp.StoreHistory != nil {
			out.Privacy.StoreHistory = *pp.StoreHistory
		}
		if pp.HistoryRetentionDays != nil {
			out.Privacy.HistoryRetentionDays = *pp.HistoryRetentionDays
		}
		if pp.FilterSensitiveInfo != nil {
			out.Privacy.FilterSensitiveInfo = *pp.FilterSensitiveInfo
		}
	}
	return Clamp(out), nil
}

// Clamp forces the numeric fields of s into their allowed ranges.
func Clamp(s VoiceSettings) VoiceSettings {
	s.Sensitivity = min(max(s.Sensitivity, MinSensitivity), MaxSensitivity)
	s.VoiceSpeed = min(max(s.VoiceSpeed, MinVoiceSpeed), MaxVoiceSpeed)
	s.Privacy.HistoryRetentionDays = min(max(s.Privacy.HistoryRetentionDays, minRetentionDays), maxRetentionDays)
	if s.CustomCommands == nil {
		s.CustomCommands = []CustomCommand{}
	}
	return s
}

// Store persists voice settings per user. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the user's stored settings, or [Defaults] when none exist.
	// It never creates a record.
	Get(ctx context.Context, userID string) (VoiceSettings, error)

	// Update merges p onto the stored (or default) settings, clamps and
	// persists the result, and returns it.
	Update(ctx context.Context, userID string, p Patch) (VoiceSettings, error)

	// Reset replaces the user's settings with [Defaults] and returns them.
	Reset(ctx context.Context, userID string) (VoiceSettings, error)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("settings: %s: %w: %w", op, ErrPersistence, err)
}
