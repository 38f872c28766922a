package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"novel-client/internal/engine"
	"novel-client/internal/models"
)

// stubLoader serves canned chapters/endings and counts calls.
type stubLoader struct {
	mu          sync.Mutex
	chapters    map[int]*models.Chapter
	chapterErr  map[int]error
	endings     []models.Ending
	fullEndings map[int]*models.Ending
	calls       map[int]int

	// endingsGate, when set, blocks ListEndings until closed. Set it
	// before the engine starts.
	endingsGate chan struct{}
}

func newStubLoader() *stubLoader {
	return &stubLoader{
		chapters:    make(map[int]*models.Chapter),
		chapterErr:  make(map[int]error),
		fullEndings: make(map[int]*models.Ending),
		calls:       make(map[int]int),
	}
}

func (s *stubLoader) LoadChapter(_ context.Context, _ string, idx int) (*models.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[idx]++
	if err := s.chapterErr[idx]; err != nil {
		return nil, err
	}
	ch, ok := s.chapters[idx]
	if !ok {
		return nil, models.ErrNotFound
	}
	// Fresh scene copies per load, like a real re-fetch.
	cp := *ch
	cp.Scenes = models.CloneScenes(ch.Scenes)
	return &cp, nil
}

func (s *stubLoader) ListEndings(_ context.Context, _ string) ([]models.Ending, error) {
	if s.endingsGate != nil {
		<-s.endingsGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endings == nil {
		return nil, models.ErrNoEndingsAvailable
	}
	return s.endings, nil
}

func (s *stubLoader) LoadEnding(_ context.Context, _ string, idx int) (*models.Ending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fullEndings[idx]
	if !ok {
		return nil, models.ErrEndingNotFound
	}
	return e, nil
}

func makeScene(id string, chapter int, lines ...string) models.Scene {
	s := models.Scene{
		Key:                "k-" + id,
		ID:                 id,
		ChapterIndex:       chapter,
		ChoiceTriggerIndex: models.NoChoiceTrigger,
	}
	for _, l := range lines {
		s.Dialogues = append(s.Dialogues, models.DialogueItem{Text: l})
	}
	return s
}

func withChoice(s models.Scene, trigger int, choices ...models.Choice) models.Scene {
	s.Choices = choices
	s.ChoiceTriggerIndex = trigger
	return s
}

func newTestEngine(t *testing.T, loader *stubLoader, totalChapters int) *engine.Engine {
	t.Helper()
	work := models.Work{ID: "w1", Title: "Test Work", TotalChapters: totalChapters}
	eng := engine.NewEngine(work, loader, zap.NewNop(), engine.Options{})
	require.NoError(t, eng.Start(context.Background()))
	return eng
}

func TestEngineStart(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "one", "two"),
	}}
	eng := newTestEngine(t, loader, 2)

	v := eng.View()
	assert.Equal(t, engine.StatePlaying, v.State)
	assert.Equal(t, 1, v.ChapterIndex)
	assert.Equal(t, 0, v.SceneIndex)
	assert.Equal(t, 0, v.DialogueIndex)
	require.NotNil(t, v.Dialogue)
	assert.Equal(t, "one", v.Dialogue.Text)
}

func TestEngineAdvanceThroughScenes(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "a1", "a2"),
		makeScene("S2", 1, "b1"),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	require.NoError(t, eng.Advance(ctx))
	v := eng.View()
	assert.Equal(t, 0, v.SceneIndex)
	assert.Equal(t, 1, v.DialogueIndex)

	require.NoError(t, eng.Advance(ctx))
	v = eng.View()
	assert.Equal(t, 1, v.SceneIndex)
	assert.Equal(t, 0, v.DialogueIndex)
	assert.Equal(t, "b1", v.Dialogue.Text)
}

func TestEngineChoiceFlow(t *testing.T) {
	loader := newStubLoader()
	choice := models.Choice{
		ID:              "cA",
		Text:            "Trust her",
		AttributesDelta: map[string]interface{}{"trust": 10.0},
		SubsequentDialogues: []models.DialogueItem{
			{Text: "She smiles."},
			{Text: "You follow."},
		},
	}
	other := models.Choice{ID: "cB", Text: "Walk away", AttributesDelta: map[string]interface{}{"trust": -5.0}}
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		withChoice(makeScene("S1", 1, "intro", "decide", "after"), 1, choice, other),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	// Reaching the trigger enters AwaitingChoice.
	require.NoError(t, eng.Advance(ctx))
	v := eng.View()
	assert.Equal(t, engine.StateAwaitingChoice, v.State)
	assert.True(t, v.ChoiceVisible)
	require.Len(t, v.Choices, 2)

	// Advance is refused until the choice is made.
	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, 1, eng.View().DialogueIndex)

	// Unknown choice id.
	assert.ErrorIs(t, eng.SelectChoice(ctx, "nope"), models.ErrChoiceNotFound)

	// Selecting applies deltas and splices subsequent dialogues.
	require.NoError(t, eng.SelectChoice(ctx, "cA"))
	v = eng.View()
	assert.Equal(t, engine.StatePlaying, v.State)
	assert.Equal(t, 10.0, v.Attributes["trust"])
	assert.Equal(t, 2, v.DialogueIndex)
	assert.Equal(t, "She smiles.", v.Dialogue.Text)
	assert.Equal(t, "cA", v.Dialogue.OriginChoiceID)
	require.NotNil(t, v.Scene)
	assert.True(t, v.Scene.ChoiceConsumed)
	assert.Equal(t, "cA", v.Scene.ChosenChoiceID)
	assert.Len(t, v.Scene.Dialogues, 5)

	// Selecting again is a no-op: no duplicate deltas, no history entry.
	require.NoError(t, eng.SelectChoice(ctx, "cA"))
	require.NoError(t, eng.SelectChoice(ctx, "cB"))
	v = eng.View()
	assert.Equal(t, 10.0, v.Attributes["trust"])
	assert.Len(t, eng.Position().ChoiceHistory, 1)
}

func TestEngineAdvanceRefusals(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "a", "b"),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	eng.SetMenuOpen(true)
	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, 0, eng.View().DialogueIndex)
	eng.SetMenuOpen(false)

	eng.SetEditInProgress(true)
	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, 0, eng.View().DialogueIndex)
	eng.SetEditInProgress(false)

	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, 1, eng.View().DialogueIndex)
}

func TestEngineChapterTransition(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "end of one"),
	}}
	loader.chapters[2] = &models.Chapter{Index: 2, Scenes: []models.Scene{
		makeScene("S2", 2, "start of two"),
	}}
	eng := newTestEngine(t, loader, 2)
	ctx := context.Background()

	require.NoError(t, eng.Advance(ctx))
	v := eng.View()
	assert.Equal(t, engine.StatePlaying, v.State)
	assert.Equal(t, 2, v.ChapterIndex)
	assert.Equal(t, "start of two", v.Dialogue.Text)
}

func TestEngineChapterPrerequisiteFailure(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "only line"),
	}}
	loader.chapterErr[2] = models.ErrPrerequisiteNotSaved
	eng := newTestEngine(t, loader, 2)
	ctx := context.Background()

	err := eng.Advance(ctx)
	assert.ErrorIs(t, err, models.ErrPrerequisiteNotSaved)

	// Stays in Playing at the last safe position.
	v := eng.View()
	assert.Equal(t, engine.StatePlaying, v.State)
	assert.Equal(t, 0, v.SceneIndex)
	assert.Equal(t, 0, v.DialogueIndex)
}

func TestEngineEndToEndWithConditionedEnding(t *testing.T) {
	loader := newStubLoader()
	choiceA := models.Choice{
		ID:              "A",
		Text:            "Help the stranger",
		AttributesDelta: map[string]interface{}{"trust": 10.0},
	}
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		withChoice(makeScene("C1S1", 1, "meet", "choose"), 1, choiceA),
	}}
	loader.chapters[2] = &models.Chapter{Index: 2, Scenes: []models.Scene{
		makeScene("C2S1", 2, "aftermath"),
	}}
	loader.endings = []models.Ending{
		{Index: 1, Title: "Trusted", Condition: map[string]interface{}{"trust": ">=5"}},
		{Index: 2, Title: "Alone", Condition: map[string]interface{}{}},
	}
	loader.fullEndings[1] = &models.Ending{Index: 1, Title: "Trusted", Scenes: []models.Scene{
		makeScene("E1S1", 0, "they remember you", "fin"),
	}}
	loader.fullEndings[2] = &models.Ending{Index: 2, Title: "Alone", Scenes: []models.Scene{
		makeScene("E2S1", 0, "nobody came"),
	}}

	eng := newTestEngine(t, loader, 2)
	ctx := context.Background()

	require.NoError(t, eng.Advance(ctx)) // reach trigger
	require.Equal(t, engine.StateAwaitingChoice, eng.View().State)
	require.NoError(t, eng.SelectChoice(ctx, "A"))

	require.NoError(t, eng.Advance(ctx)) // into chapter 2
	require.Equal(t, 2, eng.View().ChapterIndex)

	require.NoError(t, eng.Advance(ctx)) // past chapter 2 -> ending
	v := eng.View()
	assert.Equal(t, engine.StatePlayingEnding, v.State)
	assert.Equal(t, 1, v.EndingIndex)
	assert.Equal(t, "they remember you", v.Dialogue.Text)

	require.NoError(t, eng.Advance(ctx)) // last ending dialogue
	snap := eng.Snapshot()
	assert.Equal(t, 1, snap.EndingIndex)
	assert.Empty(t, snap.SceneID)

	require.NoError(t, eng.Advance(ctx)) // settle
	assert.Equal(t, engine.StateSettlement, eng.View().State)

	// Advancing past settlement is a no-op.
	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, engine.StateSettlement, eng.View().State)
}

func TestEngineFallbackEnding(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "short story"),
	}}
	loader.endings = []models.Ending{
		{Index: 1, Title: "Power", Condition: map[string]interface{}{"power": ">=50"}},
		{Index: 2, Title: "Fallback", Condition: map[string]interface{}{}},
	}
	loader.fullEndings[2] = &models.Ending{Index: 2, Title: "Fallback", Scenes: []models.Scene{
		makeScene("E2S1", 0, "so it goes"),
	}}
	eng := newTestEngine(t, loader, 1)

	require.NoError(t, eng.Advance(context.Background()))
	v := eng.View()
	assert.Equal(t, engine.StatePlayingEnding, v.State)
	assert.Equal(t, 2, v.EndingIndex)
}

func TestEngineBoundsInvariant(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "a", "b", "c"),
		makeScene("S2", 1, "d"),
	}}
	loader.endings = []models.Ending{{Index: 1, Condition: map[string]interface{}{}}}
	loader.fullEndings[1] = &models.Ending{Index: 1, Scenes: []models.Scene{
		makeScene("E1", 0, "end"),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_ = eng.Advance(ctx)
		v := eng.View()
		if v.Scene == nil {
			continue
		}
		assert.GreaterOrEqual(t, v.DialogueIndex, 0)
		assert.Less(t, v.DialogueIndex, len(v.Scene.Dialogues),
			fmt.Sprintf("dialogue index out of bounds at step %d", i))
		assert.GreaterOrEqual(t, v.SceneIndex, 0)
	}
	assert.Equal(t, engine.StateSettlement, eng.View().State)
}

func TestEngineSnapshotUsesSceneID(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "a", "b"),
	}}
	eng := newTestEngine(t, loader, 3)
	require.NoError(t, eng.Advance(context.Background()))

	snap := eng.Snapshot()
	assert.Equal(t, "S1", snap.SceneID)
	assert.Zero(t, snap.EndingIndex)
	assert.Equal(t, 1, snap.DialogueIndex)
	assert.Equal(t, "w1", snap.WorkID)
}

func TestEngineForcedEndingFromChoice(t *testing.T) {
	loader := newStubLoader()
	pinned := models.Choice{ID: "doom", Text: "Embrace it", EndingIndex: 2}
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		withChoice(makeScene("S1", 1, "the pact"), 0, pinned),
	}}
	loader.endings = []models.Ending{
		{Index: 1, Condition: map[string]interface{}{}},
		{Index: 2, Condition: map[string]interface{}{"never": ">=999"}},
	}
	loader.fullEndings[2] = &models.Ending{Index: 2, Scenes: []models.Scene{
		makeScene("E2", 0, "doom arrives"),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	require.Equal(t, engine.StateAwaitingChoice, eng.View().State)
	require.NoError(t, eng.SelectChoice(ctx, "doom"))
	require.NoError(t, eng.Advance(ctx))

	v := eng.View()
	assert.Equal(t, engine.StatePlayingEnding, v.State)
	assert.Equal(t, 2, v.EndingIndex)
}

func TestEngineReloadCurrentChapterKeepsHistory(t *testing.T) {
	loader := newStubLoader()
	c := models.Choice{ID: "c1", Text: "Go"}
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		withChoice(makeScene("S1", 1, "pick"), 0, c),
		makeScene("S2", 1, "later"),
	}}
	eng := newTestEngine(t, loader, 2)
	ctx := context.Background()

	require.NoError(t, eng.SelectChoice(ctx, "c1"))
	require.NoError(t, eng.ReloadCurrentChapter(ctx))

	// The freshly loaded scene run must carry recomputed flags from
	// history, not stale ones.
	scenes := eng.ScenesSnapshot()
	require.NotEmpty(t, scenes)
	assert.True(t, scenes[0].ChoiceConsumed)
	assert.Equal(t, "c1", scenes[0].ChosenChoiceID)
}

func TestEngineChoiceInsideEndingSettles(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "last chapter line"),
	}}
	loader.endings = []models.Ending{{Index: 1, Condition: map[string]interface{}{}}}
	epilogue := models.Choice{ID: "stay", Text: "Stay a while"}
	loader.fullEndings[1] = &models.Ending{Index: 1, Scenes: []models.Scene{
		withChoice(makeScene("E1", 0, "the door", "choose", "coda"), 1, epilogue),
	}}
	eng := newTestEngine(t, loader, 1)
	ctx := context.Background()

	require.NoError(t, eng.Advance(ctx)) // past the chapter into the ending
	require.Equal(t, engine.StatePlayingEnding, eng.View().State)

	require.NoError(t, eng.Advance(ctx)) // reach the trigger
	require.Equal(t, engine.StateAwaitingChoice, eng.View().State)

	// Resolving the choice resumes the ending, not regular play.
	require.NoError(t, eng.SelectChoice(ctx, "stay"))
	v := eng.View()
	assert.Equal(t, engine.StatePlayingEnding, v.State)
	assert.Equal(t, "coda", v.Dialogue.Text)

	// Past the last ending dialogue the session settles; the ending
	// must not be re-resolved and its scenes not appended again.
	require.NoError(t, eng.Advance(ctx))
	assert.Equal(t, engine.StateSettlement, eng.View().State)
	assert.Len(t, eng.ScenesSnapshot(), 2)
}

func TestEngineSnapshotDuringEndingLoadKeepsSceneRef(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{
		makeScene("S1", 1, "last line"),
	}}
	loader.endings = []models.Ending{{Index: 1, Condition: map[string]interface{}{}}}
	loader.fullEndings[1] = &models.Ending{Index: 1, Scenes: []models.Scene{
		makeScene("E1", 0, "fin"),
	}}
	loader.endingsGate = make(chan struct{})
	eng := newTestEngine(t, loader, 1)

	done := make(chan error, 1)
	go func() { done <- eng.Advance(context.Background()) }()
	require.Eventually(t, func() bool {
		return eng.State() == engine.StateLoadingEnding
	}, time.Second, 5*time.Millisecond)

	// No ending selected yet: the payload must still reference the
	// scene we left from, or a restore would fall back to the chapter
	// start.
	snap := eng.Snapshot()
	assert.Equal(t, "S1", snap.SceneID)
	assert.Zero(t, snap.EndingIndex)

	close(loader.endingsGate)
	require.NoError(t, <-done)
	snap = eng.Snapshot()
	assert.Equal(t, 1, snap.EndingIndex)
	assert.Empty(t, snap.SceneID)
}

func TestEngineGenerationLock(t *testing.T) {
	loader := newStubLoader()
	loader.chapters[1] = &models.Chapter{Index: 1, Scenes: []models.Scene{makeScene("S1", 1, "x")}}
	eng := newTestEngine(t, loader, 1)

	key := engine.GenerationKey("w1", "chapter", 2)
	assert.True(t, eng.TryAcquireGeneration(key))
	assert.False(t, eng.TryAcquireGeneration(key))
	eng.ReleaseGeneration(key)
	assert.True(t, eng.TryAcquireGeneration(key))
}
