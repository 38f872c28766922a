package models

// NoChoiceTrigger marks a scene without a choice point.
const NoChoiceTrigger = -1

// Scene is the canonical, normalized form of a backend scene payload.
// Scenes are appended to the player's buffer in arrival order and never
// reordered; chapter boundaries are implicit via contiguous ChapterIndex
// runs.
type Scene struct {
	// Key is a process-unique instance tag assigned at normalization time.
	// It disambiguates scenes that share a backend ID across repeated
	// pushes (e.g. a re-fetch after a creator edit). It is not a domain ID
	// and is never persisted.
	Key string `json:"key"`

	// ID is the backend scene ID. May be empty for freshly generated
	// content that was never persisted.
	ID string `json:"id,omitempty"`

	ChapterIndex    int            `json:"chapter_index"`
	BackgroundImage string         `json:"background_image,omitempty"`
	Dialogues       []DialogueItem `json:"dialogues"`
	Choices         []Choice       `json:"choices,omitempty"`

	// ChoiceTriggerIndex is the dialogue index at which Choices are
	// presented, or NoChoiceTrigger when the scene has none. Invariant:
	// when Choices is non-empty, 0 <= ChoiceTriggerIndex < len(Dialogues).
	ChoiceTriggerIndex int `json:"choice_trigger_index"`

	IsChapterEnding bool `json:"is_chapter_ending,omitempty"`

	// ChoiceConsumed is true iff ChosenChoiceID is set.
	ChoiceConsumed bool   `json:"choice_consumed"`
	ChosenChoiceID string `json:"chosen_choice_id,omitempty"`
}

// StableKey identifies the scene across buffer rebuilds: the backend ID
// when one exists, otherwise the instance tag. Anything that must
// survive a re-fetch (pending creator overrides, restore lookups) keys
// on this, never on Key alone.
func (s *Scene) StableKey() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Key
}

// HasChoices reports whether the scene carries an unplayed or played
// choice point.
func (s *Scene) HasChoices() bool {
	return len(s.Choices) > 0 && s.ChoiceTriggerIndex != NoChoiceTrigger
}

// ChoiceByID returns the choice with the given ID, or nil.
func (s *Scene) ChoiceByID(id string) *Choice {
	for i := range s.Choices {
		if s.Choices[i].ID == id {
			return &s.Choices[i]
		}
	}
	return nil
}

// DialogueItem is a single line of a scene.
type DialogueItem struct {
	Text            string `json:"text"`
	Speaker         string `json:"speaker,omitempty"`
	BackgroundImage string `json:"background_image,omitempty"`
	Narration       bool   `json:"narration"`

	// OriginChoiceID/OriginChoiceIndex are set on dialogue items spliced
	// in by a choice's subsequent dialogues, so creator edits can be
	// reconciled against them after a reload.
	OriginChoiceID    string `json:"origin_choice_id,omitempty"`
	OriginChoiceIndex int    `json:"origin_choice_index,omitempty"`
}

// Choice is a selectable option. It is immutable once loaded; selecting
// it produces a ChoiceHistoryEntry and mutates the owning scene's
// consumption flags.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// AttributesDelta/StatusesDelta hold numeric increments, removal
	// markers (nil/false, statuses only) or overwrite values.
	AttributesDelta map[string]interface{} `json:"attributes_delta,omitempty"`
	StatusesDelta   map[string]interface{} `json:"statuses_delta,omitempty"`

	SubsequentDialogues []DialogueItem `json:"subsequent_dialogues,omitempty"`
	NextScenes          []Scene        `json:"next_scenes,omitempty"`

	// EndingIndex, when >0, pins the ending to play if the story ends on
	// this branch. EndingCondition is advisory authoring metadata.
	EndingIndex     int                    `json:"ending_index,omitempty"`
	EndingCondition map[string]interface{} `json:"ending_condition,omitempty"`
}

// Chapter is an ordered run of scenes identified by a 1-based index.
type Chapter struct {
	Index  int           `json:"index"`
	Title  string        `json:"title"`
	Scenes []Scene       `json:"scenes"`
	Status ContentStatus `json:"status"`

	// IsGameEnding marks the final chapter of the work as reported by the
	// backend.
	IsGameEnding bool `json:"is_game_ending,omitempty"`
}

// Ending is a terminal scene sequence selected by matching its condition
// against player attributes. Index is 1-based and stable across requests.
type Ending struct {
	Index     int                    `json:"index"`
	Title     string                 `json:"title"`
	Condition map[string]interface{} `json:"condition,omitempty"`
	Outline   string                 `json:"outline,omitempty"`
	Scenes    []Scene                `json:"scenes,omitempty"`
	Status    ContentStatus          `json:"status"`
}
