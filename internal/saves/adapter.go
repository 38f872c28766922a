package saves

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"novel-client/internal/engine"
	"novel-client/internal/interfaces"
	"novel-client/internal/models"
)

var restoreMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "novel_client_restore_scene_mismatch_total",
	Help: "Restores whose saved scene ID no longer exists in the re-fetched chapter.",
})

// Adapter bridges the engine and the external save store. Saving
// serializes the position into a slot payload; restoring re-fetches the
// referenced content and rebuilds the session in place. Slot payloads
// reference content by domain ID, never by buffer position, so a
// regenerated chapter restores onto its closest equivalent.
type Adapter struct {
	store  interfaces.SaveStore
	loader engine.ContentLoader
	log    *zap.Logger
}

func NewAdapter(store interfaces.SaveStore, loader engine.ContentLoader, logger *zap.Logger) *Adapter {
	return &Adapter{
		store:  store,
		loader: loader,
		log:    logger.Named("SaveAdapter"),
	}
}

func validSlot(slot int) bool {
	return slot >= models.MinSaveSlot && slot <= models.MaxSaveSlot
}

// Save writes the session's current position into a slot. The payload
// is a self-contained snapshot; a later restore needs nothing from the
// session that produced it.
func (a *Adapter) Save(ctx context.Context, eng *engine.Engine, slot int) error {
	if !validSlot(slot) {
		return models.ErrSaveSlotInvalid
	}
	payload := eng.Snapshot()
	if err := a.store.PutSave(ctx, payload.WorkID, slot, &payload); err != nil {
		return fmt.Errorf("failed to persist save slot %d: %w", slot, err)
	}
	a.log.Info("Session saved",
		zap.String("workID", payload.WorkID),
		zap.Int("slot", slot),
		zap.Int("chapterIndex", payload.ChapterIndex))
	return nil
}

// Load reads a slot payload without touching the engine.
func (a *Adapter) Load(ctx context.Context, workID string, slot int) (*models.SavePayload, error) {
	if !validSlot(slot) {
		return nil, models.ErrSaveSlotInvalid
	}
	return a.store.GetSave(ctx, workID, slot)
}

// Delete clears a slot.
func (a *Adapter) Delete(ctx context.Context, workID string, slot int) error {
	if !validSlot(slot) {
		return models.ErrSaveSlotInvalid
	}
	return a.store.DeleteSave(ctx, workID, slot)
}

// Restore rebuilds the session from a slot. Content is re-fetched from
// the backend — saves hold no scene bodies — and the saved scene is
// located by its domain ID. A missing scene ID falls back to the start
// of the chapter rather than failing the restore.
func (a *Adapter) Restore(ctx context.Context, eng *engine.Engine, slot int) error {
	if !validSlot(slot) {
		return models.ErrSaveSlotInvalid
	}
	workID := eng.Work().ID
	payload, err := a.store.GetSave(ctx, workID, slot)
	if err != nil {
		return err
	}
	if payload.WorkID != "" && payload.WorkID != workID {
		return models.ErrRestoreMismatch
	}

	pos := models.NewPlayerPosition()
	pos.ChapterIndex = payload.ChapterIndex
	pos.DialogueIndex = payload.DialogueIndex
	pos.Attributes = models.CloneStateMap(payload.Attributes)
	pos.Statuses = models.CloneStateMap(payload.Statuses)
	pos.ChoiceHistory = models.CloneHistory(payload.ChoiceHistory)

	if payload.EndingIndex > 0 {
		return a.restoreEnding(ctx, eng, payload, pos)
	}
	return a.restoreChapter(ctx, eng, payload, pos)
}

func (a *Adapter) restoreEnding(ctx context.Context, eng *engine.Engine, payload *models.SavePayload, pos models.PlayerPosition) error {
	full, err := a.loader.LoadEnding(ctx, payload.WorkID, payload.EndingIndex)
	if err != nil {
		return fmt.Errorf("failed to re-fetch ending %d: %w", payload.EndingIndex, err)
	}
	pos.SceneIndex = 0
	pos.SelectedEndingIndex = full.Index
	eng.InstallRestored(models.CloneScenes(full.Scenes), pos, engine.StatePlayingEnding)

	a.log.Info("Session restored into ending",
		zap.String("workID", payload.WorkID),
		zap.Int("endingIndex", full.Index))
	return nil
}

func (a *Adapter) restoreChapter(ctx context.Context, eng *engine.Engine, payload *models.SavePayload, pos models.PlayerPosition) error {
	if payload.ChapterIndex < 1 {
		return models.ErrRestoreMismatch
	}
	ch, err := a.loader.LoadChapter(ctx, payload.WorkID, payload.ChapterIndex)
	if err != nil {
		return fmt.Errorf("failed to re-fetch chapter %d: %w", payload.ChapterIndex, err)
	}

	sceneIndex := -1
	for i := range ch.Scenes {
		if ch.Scenes[i].ID == payload.SceneID {
			sceneIndex = i
			break
		}
	}
	if sceneIndex < 0 {
		restoreMismatchTotal.Inc()
		a.log.Warn("Saved scene missing from re-fetched chapter, falling back to chapter start",
			zap.String("workID", payload.WorkID),
			zap.Int("chapterIndex", payload.ChapterIndex),
			zap.String("sceneID", payload.SceneID))
		sceneIndex = 0
		pos.DialogueIndex = 0
	}
	pos.SceneIndex = sceneIndex
	eng.InstallRestored(ch.Scenes, pos, engine.StatePlaying)

	a.log.Info("Session restored",
		zap.String("workID", payload.WorkID),
		zap.Int("chapterIndex", payload.ChapterIndex),
		zap.String("sceneID", payload.SceneID))
	return nil
}
