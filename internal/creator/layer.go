package creator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"novel-client/internal/engine"
	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

// ContentWriter is the slice of the loader the creator layer needs for
// persistence and regeneration triggers.
type ContentWriter interface {
	GenerateChapter(ctx context.Context, workID string, chapterIndex int, req schemas.GenerateChapterRequest) error
	GenerateEnding(ctx context.Context, workID string, endingIndex int, req schemas.GenerateEndingRequest) error
	SaveChapter(ctx context.Context, workID string, chapter *models.Chapter) error
}

// SceneOverride holds non-destructive presentation edits for one scene.
// Overrides live beside the buffer, never inside it; the base scene
// stays untouched until the chapter is saved.
type SceneOverride struct {
	BackgroundImage string
	DialogueEdits   map[int]string
}

func (o *SceneOverride) empty() bool {
	return o.BackgroundImage == "" && len(o.DialogueEdits) == 0
}

// Layer is the authoring overlay of a session. Text and background
// edits are kept as a side table keyed by the scene's stable key, so
// pending edits follow the scene through buffer rebuilds (a reload
// hands out new instance tags but the same backend IDs); structural
// edits (inserting and deleting narration lines) go through the engine
// so position and trigger invariants hold. All operations require the
// session to be in creator mode.
type Layer struct {
	log    *zap.Logger
	eng    *engine.Engine
	writer ContentWriter

	mu        sync.Mutex
	overrides map[string]*SceneOverride
}

func NewLayer(eng *engine.Engine, writer ContentWriter, logger *zap.Logger) *Layer {
	return &Layer{
		log:       logger.Named("Creator"),
		eng:       eng,
		writer:    writer,
		overrides: make(map[string]*SceneOverride),
	}
}

func (l *Layer) requireCreatorMode() error {
	if !l.eng.CreatorMode() {
		return models.ErrNotInCreatorMode
	}
	return nil
}

func (l *Layer) overrideFor(sceneKey string) *SceneOverride {
	o, ok := l.overrides[sceneKey]
	if !ok {
		o = &SceneOverride{DialogueEdits: make(map[int]string)}
		l.overrides[sceneKey] = o
	}
	return o
}

// resolveStableKey maps a view-level scene reference (instance tag or
// backend ID) to the key the override table uses.
func (l *Layer) resolveStableKey(sceneKey string) (string, error) {
	var stable string
	err := l.eng.MutateScene(sceneKey, func(s *models.Scene) error {
		stable = s.StableKey()
		return nil
	})
	if err != nil {
		return "", err
	}
	return stable, nil
}

// SetBackground overrides a scene's background image.
func (l *Layer) SetBackground(sceneKey, imageURL string) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	stable, err := l.resolveStableKey(sceneKey)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.overrideFor(stable).BackgroundImage = imageURL
	l.mu.Unlock()
	return nil
}

// EditDialogue overrides the text of one dialogue line.
func (l *Layer) EditDialogue(sceneKey string, index int, text string) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	if index < 0 {
		return models.ErrInvalidInput
	}
	// Validate against the live scene before recording anything.
	var stable string
	err := l.eng.MutateScene(sceneKey, func(s *models.Scene) error {
		if index >= len(s.Dialogues) {
			return models.ErrInvalidInput
		}
		stable = s.StableKey()
		return nil
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.overrideFor(stable).DialogueEdits[index] = text
	l.mu.Unlock()
	return nil
}

// Apply projects the overrides for a scene onto a copy. The input is
// not mutated; callers hand in view copies.
func (l *Layer) Apply(scene models.Scene) models.Scene {
	l.mu.Lock()
	o, ok := l.overrides[scene.StableKey()]
	l.mu.Unlock()
	if !ok || o.empty() {
		return scene
	}
	out := models.CloneScene(scene)
	if o.BackgroundImage != "" {
		out.BackgroundImage = o.BackgroundImage
	}
	for idx, text := range o.DialogueEdits {
		if idx >= 0 && idx < len(out.Dialogues) {
			out.Dialogues[idx].Text = text
		}
	}
	return out
}

// InsertNarration inserts a narrator line at the given index, shifting
// later lines, their pending edits and the choice trigger down by one.
func (l *Layer) InsertNarration(sceneKey string, at int, text string) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	l.eng.SetEditInProgress(true)
	defer l.eng.SetEditInProgress(false)

	var stable string
	err := l.eng.MutateScene(sceneKey, func(s *models.Scene) error {
		if at < 0 || at > len(s.Dialogues) {
			return models.ErrInvalidInput
		}
		item := models.DialogueItem{Text: text, Narration: true}
		s.Dialogues = append(s.Dialogues[:at], append([]models.DialogueItem{item}, s.Dialogues[at:]...)...)
		if s.ChoiceTriggerIndex != models.NoChoiceTrigger && at <= s.ChoiceTriggerIndex {
			s.ChoiceTriggerIndex++
		}
		stable = s.StableKey()
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.shiftEditsLocked(stable, at, +1)
	l.mu.Unlock()
	l.log.Info("Narration inserted", zap.String("sceneKey", sceneKey), zap.Int("index", at))
	return nil
}

// DeleteDialogue removes a dialogue line, shifting later lines, their
// pending edits and the choice trigger up by one. The trigger line
// itself cannot be deleted while the scene still carries choices.
func (l *Layer) DeleteDialogue(sceneKey string, at int) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	l.eng.SetEditInProgress(true)
	defer l.eng.SetEditInProgress(false)

	var stable string
	err := l.eng.MutateScene(sceneKey, func(s *models.Scene) error {
		if at < 0 || at >= len(s.Dialogues) {
			return models.ErrInvalidInput
		}
		if s.HasChoices() && at == s.ChoiceTriggerIndex {
			return models.ErrTriggerProtected
		}
		if len(s.Dialogues) == 1 {
			// A scene must keep at least one line.
			return models.ErrInvalidInput
		}
		s.Dialogues = append(s.Dialogues[:at], s.Dialogues[at+1:]...)
		if s.ChoiceTriggerIndex != models.NoChoiceTrigger && at < s.ChoiceTriggerIndex {
			s.ChoiceTriggerIndex--
		}
		stable = s.StableKey()
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.dropEditLocked(stable, at)
	l.shiftEditsLocked(stable, at+1, -1)
	l.mu.Unlock()
	l.log.Info("Dialogue deleted", zap.String("sceneKey", sceneKey), zap.Int("index", at))
	return nil
}

// shiftEditsLocked renumbers pending edits at or after from by delta.
func (l *Layer) shiftEditsLocked(sceneKey string, from, delta int) {
	o, ok := l.overrides[sceneKey]
	if !ok || len(o.DialogueEdits) == 0 {
		return
	}
	shifted := make(map[int]string, len(o.DialogueEdits))
	for idx, text := range o.DialogueEdits {
		if idx >= from {
			shifted[idx+delta] = text
		} else {
			shifted[idx] = text
		}
	}
	o.DialogueEdits = shifted
}

func (l *Layer) dropEditLocked(sceneKey string, at int) {
	if o, ok := l.overrides[sceneKey]; ok {
		delete(o.DialogueEdits, at)
	}
}

// SaveCurrentChapter flattens the pending overrides into the current
// chapter's scenes, persists the result to the backend and reloads the
// chapter so the buffer reflects the saved truth. Saved overrides are
// discarded.
func (l *Layer) SaveCurrentChapter(ctx context.Context) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	view := l.eng.View()
	chapterIndex := view.ChapterIndex

	var scenes []models.Scene
	for _, s := range l.eng.ScenesSnapshot() {
		if s.ChapterIndex != chapterIndex {
			continue
		}
		scenes = append(scenes, l.Apply(s))
	}
	if len(scenes) == 0 {
		return models.ErrChapterOutOfRange
	}

	chapter := &models.Chapter{
		Index:  chapterIndex,
		Scenes: scenes,
		Status: models.StatusGenerated,
	}
	workID := l.eng.Work().ID
	if err := l.writer.SaveChapter(ctx, workID, chapter); err != nil {
		return fmt.Errorf("failed to save chapter %d: %w", chapterIndex, err)
	}

	l.mu.Lock()
	for _, s := range scenes {
		delete(l.overrides, s.StableKey())
	}
	l.mu.Unlock()

	l.log.Info("Chapter saved with creator edits",
		zap.String("workID", workID),
		zap.Int("chapterIndex", chapterIndex),
		zap.Int("scenes", len(scenes)))
	return l.eng.ReloadCurrentChapter(ctx)
}

// RegenerateChapter asks the backend to regenerate a chapter. A second
// trigger for the same chapter while one is running is refused.
func (l *Layer) RegenerateChapter(ctx context.Context, chapterIndex int, req schemas.GenerateChapterRequest) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	workID := l.eng.Work().ID
	key := engine.GenerationKey(workID, "chapter", chapterIndex)
	if !l.eng.TryAcquireGeneration(key) {
		return models.ErrGenerationInProgress
	}
	defer l.eng.ReleaseGeneration(key)
	return l.writer.GenerateChapter(ctx, workID, chapterIndex, req)
}

// RegenerateEnding asks the backend to regenerate an ending.
func (l *Layer) RegenerateEnding(ctx context.Context, endingIndex int, req schemas.GenerateEndingRequest) error {
	if err := l.requireCreatorMode(); err != nil {
		return err
	}
	workID := l.eng.Work().ID
	key := engine.GenerationKey(workID, "ending", endingIndex)
	if !l.eng.TryAcquireGeneration(key) {
		return models.ErrGenerationInProgress
	}
	defer l.eng.ReleaseGeneration(key)
	return l.writer.GenerateEnding(ctx, workID, endingIndex, req)
}

// PendingOverrides reports how many scenes carry unsaved edits.
func (l *Layer) PendingOverrides() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.overrides {
		if !o.empty() {
			n++
		}
	}
	return n
}
