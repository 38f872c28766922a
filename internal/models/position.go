package models

import "time"

// ChoiceHistoryEntry records one selected choice. Entries are append-only
// and never mutated; they are the source of truth for recomputing scene
// consumption flags after a reload, because buffer indexes are not stable
// across reloads but scene IDs are.
type ChoiceHistoryEntry struct {
	ChapterIndex       int       `json:"chapter_index"`
	SceneID            string    `json:"scene_id"`
	ChoiceTriggerIndex int       `json:"choice_trigger_index"`
	ChoiceID           string    `json:"choice_id"`
	Timestamp          time.Time `json:"timestamp"`
}

// PlayerPosition tracks where a player is inside the loaded story graph.
// SceneIndex points into the loaded scene buffer and is NOT stable across
// reloads; persistence goes through SavePayload, which uses domain IDs.
type PlayerPosition struct {
	ChapterIndex  int                    `json:"chapter_index"`
	SceneIndex    int                    `json:"scene_index"`
	DialogueIndex int                    `json:"dialogue_index"`
	Attributes    map[string]interface{} `json:"attributes"`
	Statuses      map[string]interface{} `json:"statuses"`
	ChoiceHistory []ChoiceHistoryEntry   `json:"choice_history"`

	// SelectedEndingIndex is 0 until an ending has been resolved.
	SelectedEndingIndex int `json:"selected_ending_index,omitempty"`
}

// NewPlayerPosition returns a position at the start of chapter 1 with
// empty state maps.
func NewPlayerPosition() PlayerPosition {
	return PlayerPosition{
		ChapterIndex: 1,
		Attributes:   make(map[string]interface{}),
		Statuses:     make(map[string]interface{}),
	}
}

// SavePayload is the unit of save/restore for one slot. It references the
// current scene by domain ID (or the selected ending by index), never by
// buffer position.
type SavePayload struct {
	WorkID        string                 `json:"work_id"`
	ChapterIndex  int                    `json:"chapter_index"`
	SceneID       string                 `json:"scene_id,omitempty"`
	EndingIndex   int                    `json:"ending_index,omitempty"`
	DialogueIndex int                    `json:"dialogue_index"`
	Attributes    map[string]interface{} `json:"attributes"`
	Statuses      map[string]interface{} `json:"statuses"`
	ChoiceHistory []ChoiceHistoryEntry   `json:"choice_history"`
	Timestamp     time.Time              `json:"timestamp"`
}

// MinSaveSlot and MaxSaveSlot bound the slot range accepted by save
// stores.
const (
	MinSaveSlot = 1
	MaxSaveSlot = 6
)
