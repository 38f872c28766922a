package loader

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"novel-client/internal/interfaces/mocks"
	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

func testConfig() Config {
	return Config{
		PollInterval:      5 * time.Millisecond,
		MaxPollAttempts:   10,
		EndingInitialWait: 5 * time.Millisecond,
	}
}

func rawLine(t *testing.T, text string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(text)
	require.NoError(t, err)
	return b
}

func readyChapterEnvelope(t *testing.T, index int) *schemas.ChapterEnvelope {
	t.Helper()
	return &schemas.ChapterEnvelope{
		Status: "ready",
		Chapter: &schemas.RawChapter{
			Index: index,
			Title: "Chapter",
			Scenes: []schemas.RawScene{
				{ID: "S1", Dialogues: []json.RawMessage{rawLine(t, "hello")}},
			},
		},
	}
}

func TestLoadChapterReady(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetChapter", mock.Anything, "w1", 1).
		Return(readyChapterEnvelope(t, 1), nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	ch, err := l.LoadChapter(context.Background(), "w1", 1)

	require.NoError(t, err)
	assert.Equal(t, 1, ch.Index)
	require.Len(t, ch.Scenes, 1)
	assert.Equal(t, "S1", ch.Scenes[0].ID)
	assert.Equal(t, 1, ch.Scenes[0].ChapterIndex)
	client.AssertExpectations(t)
}

func TestLoadChapterPollsWhileGenerating(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetChapter", mock.Anything, "w1", 1).
		Return(&schemas.ChapterEnvelope{Status: "generating"}, nil).Twice()
	client.On("GetChapter", mock.Anything, "w1", 1).
		Return(readyChapterEnvelope(t, 1), nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	ch, err := l.LoadChapter(context.Background(), "w1", 1)

	require.NoError(t, err)
	assert.Equal(t, 1, ch.Index)
	client.AssertNumberOfCalls(t, "GetChapter", 3)
}

func TestLoadChapterGenerationError(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetChapter", mock.Anything, "w1", 1).
		Return(&schemas.ChapterEnvelope{Status: "error", Error: "model overloaded"}, nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	_, err := l.LoadChapter(context.Background(), "w1", 1)

	assert.ErrorIs(t, err, models.ErrGeneration)
	client.AssertNumberOfCalls(t, "GetChapter", 1)
}

func TestLoadChapterGivesUpAfterMaxAttempts(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetChapter", mock.Anything, "w1", 1).
		Return(&schemas.ChapterEnvelope{Status: "pending"}, nil)

	cfg := testConfig()
	cfg.MaxPollAttempts = 2
	l := NewLoader(client, zap.NewNop(), cfg)
	_, err := l.LoadChapter(context.Background(), "w1", 1)

	assert.ErrorIs(t, err, models.ErrContentNotReadyYet)
	client.AssertNumberOfCalls(t, "GetChapter", 3)
}

func TestLoadChapterOutOfRange(t *testing.T) {
	l := NewLoader(new(mocks.StoryAPIClient), zap.NewNop(), testConfig())
	_, err := l.LoadChapter(context.Background(), "w1", 0)
	assert.ErrorIs(t, err, models.ErrChapterOutOfRange)
}

func TestLoadChapterPrerequisiteGate(t *testing.T) {
	cfg := testConfig()
	cfg.RequireChapterApproval = true

	t.Run("previous chapter not saved", func(t *testing.T) {
		client := new(mocks.StoryAPIClient)
		client.On("GetWorkStatus", mock.Anything, "w1").
			Return(&schemas.WorkStatus{ChaptersStatus: []schemas.ChapterStatus{
				{ChapterIndex: 1, Status: "generated"},
			}}, nil).Once()

		l := NewLoader(client, zap.NewNop(), cfg)
		_, err := l.LoadChapter(context.Background(), "w1", 2)

		assert.ErrorIs(t, err, models.ErrPrerequisiteNotSaved)
		client.AssertNotCalled(t, "GetChapter", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("previous chapter saved", func(t *testing.T) {
		client := new(mocks.StoryAPIClient)
		client.On("GetWorkStatus", mock.Anything, "w1").
			Return(&schemas.WorkStatus{ChaptersStatus: []schemas.ChapterStatus{
				{ChapterIndex: 1, Status: "saved"},
			}}, nil).Once()
		client.On("GetChapter", mock.Anything, "w1", 2).
			Return(readyChapterEnvelope(t, 2), nil).Once()

		l := NewLoader(client, zap.NewNop(), cfg)
		ch, err := l.LoadChapter(context.Background(), "w1", 2)

		require.NoError(t, err)
		assert.Equal(t, 2, ch.Index)
	})

	t.Run("chapter one has no prerequisite", func(t *testing.T) {
		client := new(mocks.StoryAPIClient)
		client.On("GetChapter", mock.Anything, "w1", 1).
			Return(readyChapterEnvelope(t, 1), nil).Once()

		l := NewLoader(client, zap.NewNop(), cfg)
		_, err := l.LoadChapter(context.Background(), "w1", 1)

		require.NoError(t, err)
		client.AssertNotCalled(t, "GetWorkStatus", mock.Anything, mock.Anything)
	})
}

func TestLoadChapterDeduplicatesConcurrentCalls(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetChapter", mock.Anything, "w1", 1).
		Run(func(mock.Arguments) { time.Sleep(30 * time.Millisecond) }).
		Return(readyChapterEnvelope(t, 1), nil)

	l := NewLoader(client, zap.NewNop(), testConfig())

	var wg sync.WaitGroup
	results := make([]*models.Chapter, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := l.LoadChapter(context.Background(), "w1", 1)
			assert.NoError(t, err)
			results[i] = ch
		}(i)
	}
	wg.Wait()

	client.AssertNumberOfCalls(t, "GetChapter", 1)

	// Callers must not share scene storage.
	results[0].Scenes[0].ChoiceConsumed = true
	assert.False(t, results[1].Scenes[0].ChoiceConsumed)
}

func TestListEndings(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("ListEndings", mock.Anything, "w1").
		Return([]schemas.EndingSummary{
			{Index: 1, Title: "Dawn", Condition: map[string]interface{}{"hope": ">=10"}, Status: "generated"},
			{Index: 2, Title: "Dusk", Status: "generated"},
		}, nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	endings, err := l.ListEndings(context.Background(), "w1")

	require.NoError(t, err)
	require.Len(t, endings, 2)
	assert.Equal(t, "Dawn", endings[0].Title)
	assert.Equal(t, ">=10", endings[0].Condition["hope"])
	assert.Equal(t, models.StatusGenerated, endings[1].Status)
}

func TestLoadEndingWaitsThenPolls(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	client.On("GetEnding", mock.Anything, "w1", 2).
		Return(&schemas.EndingEnvelope{Status: "generating"}, nil).Twice()
	client.On("GetEnding", mock.Anything, "w1", 2).
		Return(&schemas.EndingEnvelope{Status: "ready", Ending: &schemas.RawEnding{
			Index: 2,
			Title: "Dusk",
			Scenes: []schemas.RawScene{
				{ID: "E1", Dialogues: []json.RawMessage{rawLine(t, "it ends")}},
			},
		}}, nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	ending, err := l.LoadEnding(context.Background(), "w1", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, ending.Index)
	require.Len(t, ending.Scenes, 1)
	assert.Equal(t, "it ends", ending.Scenes[0].Dialogues[0].Text)
	client.AssertNumberOfCalls(t, "GetEnding", 3)
}

func TestSaveChapterMarksSaved(t *testing.T) {
	client := new(mocks.StoryAPIClient)
	ch := &models.Chapter{Index: 1, Status: models.StatusGenerated}
	client.On("SaveChapter", mock.Anything, "w1", ch).Return(nil).Once()

	l := NewLoader(client, zap.NewNop(), testConfig())
	require.NoError(t, l.SaveChapter(context.Background(), "w1", ch))
	assert.Equal(t, models.StatusSaved, ch.Status)
	client.AssertExpectations(t)
}

func TestGenerateChapterValidatesIndex(t *testing.T) {
	l := NewLoader(new(mocks.StoryAPIClient), zap.NewNop(), testConfig())
	err := l.GenerateChapter(context.Background(), "w1", 0, schemas.GenerateChapterRequest{})
	assert.ErrorIs(t, err, models.ErrChapterOutOfRange)
}
