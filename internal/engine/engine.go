package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"novel-client/internal/models"
)

// State is the progression state of one play session.
type State string

const (
	StatePlaying        State = "playing"
	StateAwaitingChoice State = "awaiting_choice"
	StateLoadingChapter State = "loading_chapter"
	StateLoadingEnding  State = "loading_ending"
	StatePlayingEnding  State = "playing_ending"
	StateSettlement     State = "settlement"
)

// ContentLoader is the loader contract the engine consumes. The concrete
// implementation polls the backend and de-duplicates in-flight requests.
type ContentLoader interface {
	LoadChapter(ctx context.Context, workID string, chapterIndex int) (*models.Chapter, error)
	ListEndings(ctx context.Context, workID string) ([]models.Ending, error)
	LoadEnding(ctx context.Context, workID string, endingIndex int) (*models.Ending, error)
}

// Options tune a single engine instance.
type Options struct {
	// CreatorMode bypasses ending condition evaluation and chapter
	// approval gating checks done by the engine itself.
	CreatorMode bool

	// AdvanceDebounce is the minimum gap between accepted advances.
	// Fast-forward mode bypasses it. Zero disables debouncing.
	AdvanceDebounce time.Duration
}

// Engine is the narrative progression state machine for one play
// session. It owns the loaded scene buffer, the player position and the
// choice history, and drives all state transitions. One engine is
// constructed per session and passed by reference to its collaborators —
// there is no ambient shared instance.
//
// All in-memory mutation happens under mu and is atomic from the
// caller's perspective; the action gate serializes the two player-driven
// operations (Advance, SelectChoice) across their network suspension
// points.
type Engine struct {
	log    *zap.Logger
	loader ContentLoader
	work   models.Work
	opts   Options

	action  actionGate
	genLock *keyedGate

	mu            sync.Mutex
	state         State
	buffer        []models.Scene
	pos           models.PlayerPosition
	endings       []models.Ending
	currentEnding *models.Ending

	// forcedEndingIndex pins the ending chosen by a branch choice; it
	// wins over condition resolution.
	forcedEndingIndex int

	// resumeState is the state AwaitingChoice was entered from; the
	// session returns there when the choice resolves. Endings can carry
	// choice points too, and must keep settling afterwards.
	resumeState State

	creatorMode    bool
	menuOpen       bool
	editInProgress bool
	fetchInFlight  bool
	lastAdvance    time.Time
	fastForward    bool

	onChange func()
}

// NewEngine builds an engine for one work. It starts in LoadingChapter;
// call Start to fetch chapter 1.
func NewEngine(work models.Work, loader ContentLoader, logger *zap.Logger, opts Options) *Engine {
	return &Engine{
		log:         logger.Named("Engine"),
		loader:      loader,
		work:        work,
		opts:        opts,
		genLock:     newKeyedGate(),
		state:       StateLoadingChapter,
		pos:         models.NewPlayerPosition(),
		creatorMode: opts.CreatorMode,
	}
}

// Work returns the (read-only) work this engine plays.
func (e *Engine) Work() models.Work { return e.work }

// SetOnChange registers a callback invoked after asynchronous
// transitions land (chapter/ending loads, prefetch splices). It is
// called without internal locks held.
func (e *Engine) SetOnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *Engine) notifyChange() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start loads chapter 1 and enters Playing. It is the only valid call on
// a fresh engine.
func (e *Engine) Start(ctx context.Context) error {
	if !e.action.TryAcquire() {
		return nil
	}
	defer e.action.Release()

	ch, err := e.loader.LoadChapter(ctx, e.work.ID, 1)
	if err != nil {
		return fmt.Errorf("failed to load chapter 1: %w", err)
	}

	e.mu.Lock()
	e.spliceChapterLocked(ch, false)
	e.pos.ChapterIndex = 1
	e.pos.SceneIndex = 0
	e.pos.DialogueIndex = 0
	e.state = StatePlaying
	e.updateChoiceStateLocked()
	e.mu.Unlock()

	e.log.Info("Session started",
		zap.String("workID", e.work.ID),
		zap.Int("scenes", len(ch.Scenes)))
	e.notifyChange()
	return nil
}

// SetMenuOpen flips the menu overlay flag; advance is refused while it
// is set.
func (e *Engine) SetMenuOpen(open bool) {
	e.mu.Lock()
	e.menuOpen = open
	e.mu.Unlock()
}

// SetEditInProgress marks a creator edit in flight; advance is refused
// while it is set.
func (e *Engine) SetEditInProgress(editing bool) {
	e.mu.Lock()
	e.editInProgress = editing
	e.mu.Unlock()
}

// SetFastForward toggles fast-forward mode (bypasses the advance
// debounce window; still respects the action lock).
func (e *Engine) SetFastForward(on bool) {
	e.mu.Lock()
	e.fastForward = on
	e.mu.Unlock()
}

// EnterCreatorMode switches the session into authoring mode.
func (e *Engine) EnterCreatorMode() {
	e.mu.Lock()
	e.creatorMode = true
	e.mu.Unlock()
}

// ExitCreatorMode leaves authoring mode.
func (e *Engine) ExitCreatorMode() {
	e.mu.Lock()
	e.creatorMode = false
	e.mu.Unlock()
}

// CreatorMode reports whether the session is in authoring mode.
func (e *Engine) CreatorMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creatorMode
}

// Advance moves the session forward by one dialogue, scene or chapter.
// It is a silent no-op while another action holds the gate, while an
// overlay or edit blocks input, while a choice awaits selection, or
// while a load is in flight. Errors are returned only for failed loads;
// the position never moves on error.
func (e *Engine) Advance(ctx context.Context) error {
	if !e.action.TryAcquire() {
		return nil
	}
	defer e.action.Release()
	return e.advance(ctx)
}

func (e *Engine) advance(ctx context.Context) error {
	e.mu.Lock()

	if e.refuseAdvanceLocked() {
		e.mu.Unlock()
		return nil
	}
	now := time.Now()
	if e.opts.AdvanceDebounce > 0 && !e.fastForward && now.Sub(e.lastAdvance) < e.opts.AdvanceDebounce {
		e.mu.Unlock()
		return nil
	}
	e.lastAdvance = now

	scene := &e.buffer[e.pos.SceneIndex]

	// Within the current scene.
	if e.pos.DialogueIndex < len(scene.Dialogues)-1 {
		e.pos.DialogueIndex++
		e.updateChoiceStateLocked()
		e.maybePrefetchLocked()
		e.mu.Unlock()
		return nil
	}

	// Scene end; more scenes already loaded.
	if e.pos.SceneIndex+1 < len(e.buffer) {
		e.pos.SceneIndex++
		e.pos.DialogueIndex = 0
		if ci := e.buffer[e.pos.SceneIndex].ChapterIndex; ci > 0 {
			e.pos.ChapterIndex = ci
		}
		e.updateChoiceStateLocked()
		e.maybePrefetchLocked()
		e.mu.Unlock()
		return nil
	}

	// End of loaded content.
	if e.state == StatePlayingEnding {
		e.state = StateSettlement
		e.mu.Unlock()
		e.log.Info("Session settled", zap.String("workID", e.work.ID))
		e.notifyChange()
		return nil
	}

	if e.pos.ChapterIndex < e.work.TotalChapters {
		return e.loadNextChapterLocked(ctx)
	}
	return e.enterEndingLocked(ctx)
}

// loadNextChapterLocked is entered with mu held and releases it around
// the network call. On failure the position stays at the last dialogue.
func (e *Engine) loadNextChapterLocked(ctx context.Context) error {
	next := e.pos.ChapterIndex + 1
	e.state = StateLoadingChapter
	e.mu.Unlock()

	ch, err := e.loader.LoadChapter(ctx, e.work.ID, next)

	e.mu.Lock()
	if err != nil {
		e.state = StatePlaying
		e.mu.Unlock()
		e.log.Warn("Chapter load failed",
			zap.Int("chapterIndex", next), zap.Error(err))
		return err
	}
	first := e.spliceChapterLocked(ch, false)
	if first < 0 || first >= len(e.buffer) {
		// Empty chapter payload; stay put.
		e.state = StatePlaying
		e.mu.Unlock()
		return nil
	}
	e.pos.SceneIndex = first
	e.pos.DialogueIndex = 0
	e.pos.ChapterIndex = ch.Index
	e.state = StatePlaying
	e.updateChoiceStateLocked()
	e.mu.Unlock()

	e.log.Info("Chapter loaded", zap.Int("chapterIndex", ch.Index), zap.Int("scenes", len(ch.Scenes)))
	e.notifyChange()
	return nil
}

// enterEndingLocked resolves and loads the ending. Entered with mu held.
func (e *Engine) enterEndingLocked(ctx context.Context) error {
	e.state = StateLoadingEnding
	forced := e.forcedEndingIndex
	creator := e.creatorMode
	attrs := models.CloneStateMap(e.pos.Attributes)
	e.mu.Unlock()

	endings, err := e.loadEndingsList(ctx)
	if err != nil {
		e.failEndingLoad(err)
		return err
	}

	var selected *models.Ending
	if forced > 0 {
		selected, err = SelectEndingByIndex(endings, forced)
		if err != nil {
			// The pinned ending disappeared; fall back to resolution.
			selected, err = SelectEnding(endings, attrs, creator)
		}
	} else {
		selected, err = SelectEnding(endings, attrs, creator)
	}
	if err != nil {
		e.failEndingLoad(err)
		return err
	}

	full, err := e.loader.LoadEnding(ctx, e.work.ID, selected.Index)
	if err != nil {
		e.failEndingLoad(err)
		return err
	}

	e.mu.Lock()
	e.currentEnding = full
	e.pos.SelectedEndingIndex = full.Index
	first := len(e.buffer)
	e.buffer = append(e.buffer, full.Scenes...)
	if first < len(e.buffer) {
		e.pos.SceneIndex = first
		e.pos.DialogueIndex = 0
		e.state = StatePlayingEnding
	} else {
		// An ending without scenes settles immediately.
		e.state = StateSettlement
	}
	e.updateChoiceStateLocked()
	e.mu.Unlock()

	e.log.Info("Ending selected",
		zap.Int("endingIndex", full.Index),
		zap.String("title", full.Title))
	e.notifyChange()
	return nil
}

func (e *Engine) failEndingLoad(err error) {
	e.mu.Lock()
	e.state = StatePlaying
	e.mu.Unlock()
	e.log.Warn("Ending load failed", zap.Error(err))
}

func (e *Engine) loadEndingsList(ctx context.Context) ([]models.Ending, error) {
	e.mu.Lock()
	cached := e.endings
	e.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	endings, err := e.loader.ListEndings(ctx, e.work.ID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.endings = endings
	e.mu.Unlock()
	return endings, nil
}

// SelectChoice applies the identified choice of the current scene:
// deltas, consumption flags, history entry and subsequent-dialogue
// splice. Selecting an already consumed choice is a no-op. It is a
// silent no-op while another action holds the gate.
func (e *Engine) SelectChoice(ctx context.Context, choiceID string) error {
	if !e.action.TryAcquire() {
		return nil
	}
	defer e.action.Release()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAwaitingChoice && e.state != StatePlaying {
		return models.ErrNoActiveChoice
	}
	if e.pos.SceneIndex < 0 || e.pos.SceneIndex >= len(e.buffer) {
		return models.ErrInternalServer
	}
	scene := &e.buffer[e.pos.SceneIndex]
	if !scene.HasChoices() {
		return models.ErrNoActiveChoice
	}
	if scene.ChoiceConsumed {
		// Idempotent: no duplicate deltas, no duplicate history entry.
		return nil
	}
	if e.pos.DialogueIndex < scene.ChoiceTriggerIndex {
		return models.ErrNoActiveChoice
	}

	choice := scene.ChoiceByID(choiceID)
	if choice == nil {
		return models.ErrChoiceNotFound
	}

	applyChoiceDeltas(e.pos.Attributes, e.pos.Statuses, choice.AttributesDelta, choice.StatusesDelta)
	scene.ChoiceConsumed = true
	scene.ChosenChoiceID = choice.ID
	e.pos.ChoiceHistory = append(e.pos.ChoiceHistory, models.ChoiceHistoryEntry{
		ChapterIndex:       e.pos.ChapterIndex,
		SceneID:            scene.ID,
		ChoiceTriggerIndex: scene.ChoiceTriggerIndex,
		ChoiceID:           choice.ID,
		Timestamp:          time.Now().UTC(),
	})
	if choice.EndingIndex > 0 {
		e.forcedEndingIndex = choice.EndingIndex
	}

	// Splice subsequent dialogues immediately after the trigger.
	if n := len(choice.SubsequentDialogues); n > 0 {
		items := make([]models.DialogueItem, n)
		for i, d := range choice.SubsequentDialogues {
			d.OriginChoiceID = choice.ID
			d.OriginChoiceIndex = i
			items[i] = d
		}
		at := scene.ChoiceTriggerIndex + 1
		merged := make([]models.DialogueItem, 0, len(scene.Dialogues)+n)
		merged = append(merged, scene.Dialogues[:at]...)
		merged = append(merged, items...)
		merged = append(merged, scene.Dialogues[at:]...)
		scene.Dialogues = merged
		e.pos.DialogueIndex = at
	} else if e.pos.DialogueIndex < len(scene.Dialogues)-1 {
		e.pos.DialogueIndex++
	} else if e.pos.SceneIndex+1 < len(e.buffer) {
		e.pos.SceneIndex++
		e.pos.DialogueIndex = 0
		if ci := e.buffer[e.pos.SceneIndex].ChapterIndex; ci > 0 {
			e.pos.ChapterIndex = ci
		}
	}

	// Choice-provided scenes follow the current scene in buffer order.
	if len(choice.NextScenes) > 0 {
		at := e.pos.SceneIndex + 1
		merged := make([]models.Scene, 0, len(e.buffer)+len(choice.NextScenes))
		merged = append(merged, e.buffer[:at]...)
		merged = append(merged, models.CloneScenes(choice.NextScenes)...)
		merged = append(merged, e.buffer[at:]...)
		e.buffer = merged
	}

	if e.state == StateAwaitingChoice {
		e.state = StatePlaying
		if e.resumeState != "" {
			e.state = e.resumeState
		}
		e.resumeState = ""
	}
	e.updateChoiceStateLocked()
	e.log.Info("Choice applied",
		zap.String("choiceID", choice.ID),
		zap.String("sceneID", scene.ID))
	return nil
}

// refuseAdvanceLocked is the global advance gating predicate.
func (e *Engine) refuseAdvanceLocked() bool {
	if e.menuOpen || e.editInProgress {
		return true
	}
	switch e.state {
	case StateLoadingChapter, StateLoadingEnding, StateAwaitingChoice, StateSettlement:
		return true
	}
	if len(e.buffer) == 0 || e.pos.SceneIndex >= len(e.buffer) {
		return true
	}
	return false
}

// updateChoiceStateLocked enters AwaitingChoice when the current
// dialogue is an unconsumed choice trigger.
func (e *Engine) updateChoiceStateLocked() {
	if e.pos.SceneIndex < 0 || e.pos.SceneIndex >= len(e.buffer) {
		return
	}
	scene := &e.buffer[e.pos.SceneIndex]
	if scene.HasChoices() && !scene.ChoiceConsumed && e.pos.DialogueIndex == scene.ChoiceTriggerIndex {
		if e.state == StatePlaying || e.state == StatePlayingEnding {
			e.resumeState = e.state
			e.state = StateAwaitingChoice
		}
	}
}

// maybePrefetchLocked starts a background load of the next chapter when
// the player enters the last loaded scene. The loader de-duplicates the
// request against any in-flight load for the same key.
func (e *Engine) maybePrefetchLocked() {
	if e.fetchInFlight || e.state != StatePlaying {
		return
	}
	if e.pos.SceneIndex != len(e.buffer)-1 {
		return
	}
	next := e.pos.ChapterIndex + 1
	if next > e.work.TotalChapters || e.hasChapterLocked(next) {
		return
	}
	e.fetchInFlight = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ch, err := e.loader.LoadChapter(ctx, e.work.ID, next)

		e.mu.Lock()
		e.fetchInFlight = false
		if err == nil && ch != nil {
			e.spliceChapterLocked(ch, false)
		}
		e.mu.Unlock()

		if err != nil {
			e.log.Debug("Prefetch skipped", zap.Int("chapterIndex", next), zap.Error(err))
			return
		}
		e.notifyChange()
	}()
}

func (e *Engine) hasChapterLocked(chapterIndex int) bool {
	for i := range e.buffer {
		if e.buffer[i].ChapterIndex == chapterIndex {
			return true
		}
	}
	return false
}

// spliceChapterLocked merges chapter scenes into the buffer and returns
// the buffer index of the chapter's first scene, or -1 when the payload
// was empty. replace=true swaps the contiguous run belonging to the same
// chapter in place, leaving earlier chapters untouched; replace=false
// appends. A chapter already present is never appended twice.
func (e *Engine) spliceChapterLocked(ch *models.Chapter, replace bool) int {
	if len(ch.Scenes) == 0 {
		return -1
	}
	start, end := e.chapterRunLocked(ch.Index)
	if start >= 0 {
		if !replace {
			return start
		}
		merged := make([]models.Scene, 0, len(e.buffer)-(end-start)+len(ch.Scenes))
		merged = append(merged, e.buffer[:start]...)
		merged = append(merged, ch.Scenes...)
		merged = append(merged, e.buffer[end:]...)
		e.buffer = merged
		e.clampPositionLocked()
		return start
	}
	first := len(e.buffer)
	e.buffer = append(e.buffer, ch.Scenes...)
	return first
}

// chapterRunLocked finds the contiguous [start,end) run of scenes
// belonging to a chapter, or (-1,-1).
func (e *Engine) chapterRunLocked(chapterIndex int) (int, int) {
	start := -1
	for i := range e.buffer {
		if e.buffer[i].ChapterIndex == chapterIndex {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			return start, i
		}
	}
	if start < 0 {
		return -1, -1
	}
	return start, len(e.buffer)
}

// clampPositionLocked keeps the position inside buffer bounds after a
// splice. No mutation may ever leave indexes dangling.
func (e *Engine) clampPositionLocked() {
	if len(e.buffer) == 0 {
		e.pos.SceneIndex = 0
		e.pos.DialogueIndex = 0
		return
	}
	if e.pos.SceneIndex >= len(e.buffer) {
		e.pos.SceneIndex = len(e.buffer) - 1
	}
	if max := len(e.buffer[e.pos.SceneIndex].Dialogues) - 1; e.pos.DialogueIndex > max {
		if max < 0 {
			max = 0
		}
		e.pos.DialogueIndex = max
	}
}

// ReloadCurrentChapter re-fetches the chapter the player is in and
// replaces its scene run in place, without disturbing earlier chapters.
// Used after creator edits are persisted.
func (e *Engine) ReloadCurrentChapter(ctx context.Context) error {
	if !e.action.TryAcquire() {
		return models.ErrGenerationInProgress
	}
	defer e.action.Release()

	e.mu.Lock()
	idx := e.pos.ChapterIndex
	prev := e.state
	e.state = StateLoadingChapter
	e.mu.Unlock()

	ch, err := e.loader.LoadChapter(ctx, e.work.ID, idx)

	e.mu.Lock()
	e.state = prev
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.spliceChapterLocked(ch, true)
	e.replayHistoryLocked()
	e.updateChoiceStateLocked()
	e.mu.Unlock()

	e.notifyChange()
	return nil
}

// replayHistoryLocked recomputes scene consumption flags from the choice
// history, matching scenes by domain ID. Stale flags from a previous
// load are never trusted.
func (e *Engine) replayHistoryLocked() {
	consumed := make(map[string]string, len(e.pos.ChoiceHistory))
	for _, entry := range e.pos.ChoiceHistory {
		if entry.SceneID != "" {
			consumed[entry.SceneID] = entry.ChoiceID
		}
	}
	for i := range e.buffer {
		s := &e.buffer[i]
		if !s.HasChoices() {
			continue
		}
		if id, ok := consumed[s.ID]; ok {
			s.ChoiceConsumed = true
			s.ChosenChoiceID = id
		} else {
			s.ChoiceConsumed = false
			s.ChosenChoiceID = ""
		}
	}
}

// MutateScene runs fn against the buffered scene addressed by instance
// key or backend ID, under the engine lock. Structural edits (inserted
// or deleted dialogues) may move the trigger or shrink the scene; the
// position is re-clamped and the choice state recomputed before the
// lock drops.
func (e *Engine) MutateScene(key string, fn func(*models.Scene) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.buffer {
		if e.buffer[i].Key == key || (e.buffer[i].ID != "" && e.buffer[i].ID == key) {
			if err := fn(&e.buffer[i]); err != nil {
				return err
			}
			e.clampPositionLocked()
			e.updateChoiceStateLocked()
			return nil
		}
	}
	return models.ErrSceneNotFound
}

// TryAcquireGeneration takes the keyed generation lock guarding against
// duplicate generation-trigger requests for the same chapter or ending.
func (e *Engine) TryAcquireGeneration(key string) bool { return e.genLock.TryAcquire(key) }

// ReleaseGeneration frees a generation key.
func (e *Engine) ReleaseGeneration(key string) { e.genLock.Release(key) }
