package schemas

import "encoding/json"

// Raw wire shapes as the backend sends them. Dialogue entries are
// heterogeneous (bare strings or objects, optionally with an embedded
// choice list); everything downstream of the normalizer works against
// the canonical models instead.

// ChapterEnvelope is the response of GET chapter(workID, chapterIndex).
type ChapterEnvelope struct {
	Status  string      `json:"status"` // pending|generating|ready|error
	Error   string      `json:"error,omitempty"`
	Chapter *RawChapter `json:"chapter,omitempty"`
}

// RawChapter is the chapter body inside a ready envelope.
type RawChapter struct {
	Index        int        `json:"index"`
	Title        string     `json:"title"`
	Scenes       []RawScene `json:"scenes"`
	Status       string     `json:"status,omitempty"`
	IsGameEnding bool       `json:"is_game_ending,omitempty"`
}

// RawScene is one scene payload. Dialogues stay raw until normalization
// so malformed entries can be stringified instead of dropped.
type RawScene struct {
	ID                 string            `json:"id,omitempty"`
	BackgroundImage    string            `json:"background_image,omitempty"`
	Dialogues          []json.RawMessage `json:"dialogues"`
	Choices            []RawChoice       `json:"choices,omitempty"`
	ChoiceTriggerIndex *int              `json:"choice_trigger_index,omitempty"`
	IsChapterEnding    bool              `json:"is_chapter_ending,omitempty"`
}

// RawDialogue is the object form of a dialogue entry. Narration carries
// narrator text; when present it wins over Text.
type RawDialogue struct {
	Text            string      `json:"text,omitempty"`
	Narration       string      `json:"narration,omitempty"`
	Speaker         string      `json:"speaker,omitempty"`
	BackgroundImage string      `json:"background_image,omitempty"`
	Choices         []RawChoice `json:"choices,omitempty"`
}

// RawChoice is one selectable option.
type RawChoice struct {
	ID                  string                 `json:"id,omitempty"`
	Text                string                 `json:"text"`
	AttributesDelta     map[string]interface{} `json:"attributes_delta,omitempty"`
	StatusesDelta       map[string]interface{} `json:"statuses_delta,omitempty"`
	SubsequentDialogues []json.RawMessage      `json:"subsequent_dialogues,omitempty"`
	NextScenes          []RawScene             `json:"next_scenes,omitempty"`
	EndingIndex         int                    `json:"ending_index,omitempty"`
	EndingCondition     map[string]interface{} `json:"ending_condition,omitempty"`
}

// EndingSummary is one entry of GET endings(workID).
type EndingSummary struct {
	Index     int                    `json:"index"`
	Title     string                 `json:"title"`
	Condition map[string]interface{} `json:"condition,omitempty"`
	Status    string                 `json:"status"`
}

// EndingEnvelope is the response of GET ending(workID, index).
type EndingEnvelope struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Ending *RawEnding `json:"ending,omitempty"`
}

// RawEnding is the ending body inside a ready envelope.
type RawEnding struct {
	Index     int                    `json:"index"`
	Title     string                 `json:"title"`
	Condition map[string]interface{} `json:"condition,omitempty"`
	Outline   string                 `json:"outline,omitempty"`
	Scenes    []RawScene             `json:"scenes"`
	Status    string                 `json:"status,omitempty"`
}

// GenerateChapterRequest is the body of POST generateChapter.
type GenerateChapterRequest struct {
	Outlines   []string `json:"outlines,omitempty"`
	UserPrompt string   `json:"user_prompt,omitempty"`
}

// GenerateEndingRequest is the body of POST generateEnding.
type GenerateEndingRequest struct {
	Title      string `json:"title,omitempty"`
	Outline    string `json:"outline,omitempty"`
	UserPrompt string `json:"user_prompt,omitempty"`
}

// WorkStatus is the response of GET workStatus(workID).
type WorkStatus struct {
	ChaptersStatus []ChapterStatus `json:"chapters_status"`
}

// ChapterStatus reports the backend status of one chapter.
type ChapterStatus struct {
	ChapterIndex int    `json:"chapter_index"`
	Status       string `json:"status"`
}
