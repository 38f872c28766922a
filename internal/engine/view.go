package engine

import (
	"time"

	"novel-client/internal/models"
)

// View is a read-only projection of the session for rendering. It is
// recomputed on demand — there is no implicit reactivity; callers fetch
// a fresh view after each mutation.
type View struct {
	State         State                  `json:"state"`
	ChapterIndex  int                    `json:"chapter_index"`
	SceneIndex    int                    `json:"scene_index"`
	DialogueIndex int                    `json:"dialogue_index"`
	Scene         *models.Scene          `json:"scene,omitempty"`
	Dialogue      *models.DialogueItem   `json:"dialogue,omitempty"`
	ChoiceVisible bool                   `json:"choice_visible"`
	Choices       []models.Choice        `json:"choices,omitempty"`
	Attributes    map[string]interface{} `json:"attributes"`
	Statuses      map[string]interface{} `json:"statuses"`
	EndingIndex   int                    `json:"ending_index,omitempty"`
	Settled       bool                   `json:"settled"`
}

// View returns the current projection. The scene is a deep copy; callers
// (e.g. the creator override projection) may decorate it freely.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		State:         e.state,
		ChapterIndex:  e.pos.ChapterIndex,
		SceneIndex:    e.pos.SceneIndex,
		DialogueIndex: e.pos.DialogueIndex,
		Attributes:    models.CloneStateMap(e.pos.Attributes),
		Statuses:      models.CloneStateMap(e.pos.Statuses),
		EndingIndex:   e.pos.SelectedEndingIndex,
		Settled:       e.state == StateSettlement,
	}
	if e.pos.SceneIndex >= 0 && e.pos.SceneIndex < len(e.buffer) {
		scene := models.CloneScene(e.buffer[e.pos.SceneIndex])
		v.Scene = &scene
		if e.pos.DialogueIndex >= 0 && e.pos.DialogueIndex < len(scene.Dialogues) {
			d := scene.Dialogues[e.pos.DialogueIndex]
			v.Dialogue = &d
		}
		if e.state == StateAwaitingChoice {
			v.ChoiceVisible = true
			v.Choices = scene.Choices
		}
	}
	return v
}

// ScenesSnapshot returns a deep copy of the loaded scene buffer, e.g.
// for the creator override projection.
func (e *Engine) ScenesSnapshot() []models.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneScenes(e.buffer)
}

// Position returns a copy of the player position.
func (e *Engine) Position() models.PlayerPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.pos
	pos.Attributes = models.CloneStateMap(e.pos.Attributes)
	pos.Statuses = models.CloneStateMap(e.pos.Statuses)
	pos.ChoiceHistory = models.CloneHistory(e.pos.ChoiceHistory)
	return pos
}

// State returns the current progression state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot serializes the position into a slot payload. It references
// the current scene by domain ID — or the selected ending by index once
// the session has entered its ending — never by buffer position.
func (e *Engine) Snapshot() models.SavePayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := models.SavePayload{
		WorkID:        e.work.ID,
		ChapterIndex:  e.pos.ChapterIndex,
		DialogueIndex: e.pos.DialogueIndex,
		Attributes:    models.CloneStateMap(e.pos.Attributes),
		Statuses:      models.CloneStateMap(e.pos.Statuses),
		ChoiceHistory: models.CloneHistory(e.pos.ChoiceHistory),
		Timestamp:     time.Now().UTC(),
	}
	st := e.state
	if st == StateAwaitingChoice && e.resumeState == StatePlayingEnding {
		st = StatePlayingEnding
	}
	switch st {
	case StateLoadingEnding, StatePlayingEnding, StateSettlement:
		if e.pos.SelectedEndingIndex > 0 {
			payload.EndingIndex = e.pos.SelectedEndingIndex
			return payload
		}
		// Resolution has not landed yet; keep the scene reference so a
		// restore does not lose the position.
	}
	if e.pos.SceneIndex >= 0 && e.pos.SceneIndex < len(e.buffer) {
		payload.SceneID = e.buffer[e.pos.SceneIndex].ID
	}
	return payload
}

// InstallRestored replaces the engine's buffer and position with state
// rebuilt by the save/restore adapter, then recomputes consumption flags
// from the restored history and reconciles the current scene.
func (e *Engine) InstallRestored(buffer []models.Scene, pos models.PlayerPosition, state State) {
	e.mu.Lock()
	e.buffer = buffer
	e.pos = pos
	e.state = state
	e.resumeState = ""
	e.clampPositionLocked()
	e.replayHistoryLocked()
	e.reconcileCurrentSceneLocked()
	e.updateChoiceStateLocked()
	e.mu.Unlock()
	e.notifyChange()
}

// reconcileCurrentSceneLocked applies the restore rules for the scene
// the player lands on:
//   - before the trigger: the choice must be offered again, whatever the
//     history says (the player may have rewound);
//   - at/past the trigger with a history entry: consumed;
//   - at/past the trigger without a history entry: inconsistent — treat
//     conservatively as consumed rather than re-prompting.
func (e *Engine) reconcileCurrentSceneLocked() {
	if e.pos.SceneIndex < 0 || e.pos.SceneIndex >= len(e.buffer) {
		return
	}
	scene := &e.buffer[e.pos.SceneIndex]
	if !scene.HasChoices() {
		return
	}
	if e.pos.DialogueIndex < scene.ChoiceTriggerIndex {
		scene.ChoiceConsumed = false
		scene.ChosenChoiceID = ""
		return
	}
	if !scene.ChoiceConsumed {
		scene.ChoiceConsumed = true
	}
}
