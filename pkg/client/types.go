package client

import "time"

// CommandType selects how Command.Content is interpreted.
type CommandType string

const (
	CommandAudio CommandType = "audio"
	CommandText  CommandType = "text"
)

// Command is the body of a command submission.
type Command struct {
	Type CommandType `json:"type"`
	// Content is base64 audio (or a data URI) for audio commands and the
	// command text otherwise.
	Content         string         `json:"content"`
	Format          string         `json:"format,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	RequireWakeWord bool           `json:"requireWakeWord,omitempty"`
}

// Action describes the side effect a command performed.
type Action struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResult is the outcome of one command. Success is false for commands
// that were processed but failed; Error says why.
type CommandResult struct {
	Success        bool           `json:"success"`
	Transcript     string         `json:"transcript"`
	Intent         string         `json:"intent,omitempty"`
	Entities       map[string]any `json:"entities,omitempty"`
	Action         *Action        `json:"action,omitempty"`
	Response       map[string]any `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	AudioData      string         `json:"audioData,omitempty"`
	AudioMIMEType  string         `json:"audioMimeType,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	AttemptID      string         `json:"attemptId,omitempty"`
	ProcessingTime float64        `json:"processingTime"`
}

// Attempt is a stored history entry.
type Attempt struct {
	ID                    string         `json:"id"`
	Transcript            string         `json:"transcript"`
	Intent                *string        `json:"intent"`
	Entities              map[string]any `json:"entities"`
	Status                string         `json:"status"`
	ErrorMessage          string         `json:"errorMessage,omitempty"`
	Response              map[string]any `json:"response"`
	ActionTaken           *Action        `json:"actionTaken"`
	ProcessingTimeSeconds float64        `json:"processingTimeSeconds"`
	ConfidenceScore       *float64       `json:"confidenceScore"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// Pagination describes one page of history.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HistoryPage is one page of history, newest first.
type HistoryPage struct {
	Items      []Attempt  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// HistoryQuery filters a history listing. Zero values are omitted.
type HistoryQuery struct {
	Page   int
	Limit  int
	From   time.Time
	To     time.Time
	Status string
	Intent string
}

// CustomCommand maps a phrase to an intent.
type CustomCommand struct {
	Phrase   string         `json:"phrase"`
	Action   string         `json:"action"`
	Entities map[string]any `json:"entities,omitempty"`
}

// Privacy controls what history keeps.
type Privacy struct {
	StoreHistory         bool `json:"storeHistory"`
	HistoryRetentionDays int  `json:"historyRetentionDays"`
	FilterSensitiveInfo  bool `json:"filterSensitiveInfo"`
}

// Settings are a user's voice preferences.
type Settings struct {
	WakeWord               string          `json:"wakeWord"`
	Sensitivity            float64         `json:"sensitivity"`
	VoiceActivationEnabled bool            `json:"voiceActivationEnabled"`
	VoiceType              string          `json:"voiceType"`
	VoiceSpeed             float64         `json:"voiceSpeed"`
	CustomCommands         []CustomCommand `json:"customCommands"`
	Privacy                Privacy         `json:"privacy"`
	UpdatedAt              time.Time       `json:"updatedAt,omitzero"`
}

// PrivacyPatch updates a subset of Privacy.
type PrivacyPatch struct {
	StoreHistory         *bool `json:"storeHistory,omitempty"`
	HistoryRetentionDays *int  `json:"historyRetentionDays,omitempty"`
	FilterSensitiveInfo  *bool `json:"filterSensitiveInfo,omitempty"`
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	WakeWord               *string          `json:"wakeWord,omitempty"`
	Sensitivity            *float64         `json:"sensitivity,omitempty"`
	VoiceActivationEnabled *bool            `json:"voiceActivationEnabled,omitempty"`
	VoiceType              *string          `json:"voiceType,omitempty"`
	VoiceSpeed             *float64         `json:"voiceSpeed,omitempty"`
	CustomCommands         *[]CustomCommand `json:"customCommands,omitempty"`
	Privacy                *PrivacyPatch    `json:"privacy,omitempty"`
}

// Voice is a selectable synthesis voice.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Voices lists the catalogue and, when synthesis is configured, what the
// backend offers beyond it.
type Voices struct {
	Voices         []Voice `json:"voices"`
	ProviderVoices []Voice `json:"providerVoices,omitempty"`
}

// VoiceSample is synthesized test audio.
type VoiceSample struct {
	AudioData     string `json:"audioData"`
	AudioMIMEType string `json:"audioMimeType"`
}
