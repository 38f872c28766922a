package schemas

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"novel-client/internal/models"
)

// NormalizeChapter converts a raw chapter payload into the canonical
// model. Scene order is preserved exactly.
func NormalizeChapter(raw *RawChapter) *models.Chapter {
	ch := &models.Chapter{
		Index:        raw.Index,
		Title:        raw.Title,
		Status:       normalizeStatus(raw.Status),
		IsGameEnding: raw.IsGameEnding,
		Scenes:       make([]models.Scene, 0, len(raw.Scenes)),
	}
	for i := range raw.Scenes {
		ch.Scenes = append(ch.Scenes, NormalizeScene(&raw.Scenes[i], raw.Index))
	}
	return ch
}

// NormalizeEnding converts a raw ending payload. Ending scenes keep the
// ending's owning chapter index at 0; they live past the chapter run.
func NormalizeEnding(raw *RawEnding) *models.Ending {
	e := &models.Ending{
		Index:     raw.Index,
		Title:     raw.Title,
		Condition: raw.Condition,
		Outline:   raw.Outline,
		Status:    normalizeStatus(raw.Status),
		Scenes:    make([]models.Scene, 0, len(raw.Scenes)),
	}
	for i := range raw.Scenes {
		e.Scenes = append(e.Scenes, NormalizeScene(&raw.Scenes[i], 0))
	}
	return e
}

// NormalizeScene converts one raw scene into the canonical Scene.
//
// Dialogue entries may be bare strings or objects; malformed entries are
// stringified rather than dropped so dialogue indexes stay stable. The
// first dialogue entry carrying an embedded choice list wins and its
// normalized position becomes the trigger index; later embedded lists in
// the same scene are ignored. Scene-level choices without an explicit
// trigger default to the last dialogue.
func NormalizeScene(raw *RawScene, chapterIndex int) models.Scene {
	scene := models.Scene{
		Key:                uuid.NewString(),
		ID:                 raw.ID,
		ChapterIndex:       chapterIndex,
		BackgroundImage:    raw.BackgroundImage,
		ChoiceTriggerIndex: models.NoChoiceTrigger,
		IsChapterEnding:    raw.IsChapterEnding,
		Dialogues:          make([]models.DialogueItem, 0, len(raw.Dialogues)),
	}

	for _, entry := range raw.Dialogues {
		item, embedded := normalizeDialogueEntry(entry)
		scene.Dialogues = append(scene.Dialogues, item)
		if len(embedded) > 0 && scene.ChoiceTriggerIndex == models.NoChoiceTrigger {
			scene.ChoiceTriggerIndex = len(scene.Dialogues) - 1
			scene.Choices = normalizeChoices(embedded, chapterIndex)
		}
	}

	if scene.ChoiceTriggerIndex == models.NoChoiceTrigger && len(raw.Choices) > 0 && len(scene.Dialogues) > 0 {
		scene.Choices = normalizeChoices(raw.Choices, chapterIndex)
		if raw.ChoiceTriggerIndex != nil && *raw.ChoiceTriggerIndex >= 0 && *raw.ChoiceTriggerIndex < len(scene.Dialogues) {
			scene.ChoiceTriggerIndex = *raw.ChoiceTriggerIndex
		} else {
			scene.ChoiceTriggerIndex = len(scene.Dialogues) - 1
		}
	}

	return scene
}

// normalizeDialogueEntry parses one raw dialogue entry, returning the
// canonical item plus any embedded choice list found on it.
func normalizeDialogueEntry(entry json.RawMessage) (models.DialogueItem, []RawChoice) {
	var text string
	if err := json.Unmarshal(entry, &text); err == nil {
		return models.DialogueItem{Text: text}, nil
	}

	var obj RawDialogue
	if err := json.Unmarshal(entry, &obj); err != nil {
		// Stringify rather than drop, to keep dialogue indexes stable.
		return models.DialogueItem{Text: strings.TrimSpace(string(entry))}, nil
	}

	item := models.DialogueItem{
		Speaker:         obj.Speaker,
		BackgroundImage: obj.BackgroundImage,
	}
	switch {
	case obj.Narration != "":
		item.Text = obj.Narration
		item.Narration = true
	default:
		item.Text = obj.Text
	}
	return item, obj.Choices
}

func normalizeChoices(raw []RawChoice, chapterIndex int) []models.Choice {
	out := make([]models.Choice, 0, len(raw))
	for i := range raw {
		out = append(out, normalizeChoice(&raw[i], chapterIndex))
	}
	return out
}

func normalizeChoice(raw *RawChoice, chapterIndex int) models.Choice {
	c := models.Choice{
		ID:              raw.ID,
		Text:            raw.Text,
		AttributesDelta: raw.AttributesDelta,
		StatusesDelta:   raw.StatusesDelta,
		EndingIndex:     raw.EndingIndex,
		EndingCondition: raw.EndingCondition,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, entry := range raw.SubsequentDialogues {
		item, _ := normalizeDialogueEntry(entry)
		c.SubsequentDialogues = append(c.SubsequentDialogues, item)
	}
	for i := range raw.NextScenes {
		c.NextScenes = append(c.NextScenes, NormalizeScene(&raw.NextScenes[i], chapterIndex))
	}
	return c
}

func normalizeStatus(s string) models.ContentStatus {
	switch models.ContentStatus(s) {
	case models.StatusGenerating, models.StatusGenerated, models.StatusSaved:
		return models.ContentStatus(s)
	case models.StatusNotGenerated:
		return models.StatusNotGenerated
	default:
		// Generated chapters arrive inside a ready envelope with an empty
		// or unknown status string.
		return models.StatusGenerated
	}
}
