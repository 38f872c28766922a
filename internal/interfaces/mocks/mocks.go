package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

// Mock StoryAPIClient
type StoryAPIClient struct {
	mock.Mock
}

func (m *StoryAPIClient) GetWork(ctx context.Context, workID string) (*models.Work, error) {
	args := m.Called(ctx, workID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Work), args.Error(1)
}

func (m *StoryAPIClient) GetChapter(ctx context.Context, workID string, chapterIndex int) (*schemas.ChapterEnvelope, error) {
	args := m.Called(ctx, workID, chapterIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ChapterEnvelope), args.Error(1)
}

func (m *StoryAPIClient) GenerateChapter(ctx context.Context, workID string, chapterIndex int, req schemas.GenerateChapterRequest) error {
	args := m.Called(ctx, workID, chapterIndex, req)
	return args.Error(0)
}

func (m *StoryAPIClient) ListEndings(ctx context.Context, workID string) ([]schemas.EndingSummary, error) {
	args := m.Called(ctx, workID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.EndingSummary), args.Error(1)
}

func (m *StoryAPIClient) GetEnding(ctx context.Context, workID string, endingIndex int) (*schemas.EndingEnvelope, error) {
	args := m.Called(ctx, workID, endingIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.EndingEnvelope), args.Error(1)
}

func (m *StoryAPIClient) GenerateEnding(ctx context.Context, workID string, endingIndex int, req schemas.GenerateEndingRequest) error {
	args := m.Called(ctx, workID, endingIndex, req)
	return args.Error(0)
}

func (m *StoryAPIClient) GetWorkStatus(ctx context.Context, workID string) (*schemas.WorkStatus, error) {
	args := m.Called(ctx, workID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.WorkStatus), args.Error(1)
}

func (m *StoryAPIClient) SaveChapter(ctx context.Context, workID string, chapter *models.Chapter) error {
	args := m.Called(ctx, workID, chapter)
	return args.Error(0)
}

// Mock SaveStore
type SaveStore struct {
	mock.Mock
}

func (m *SaveStore) PutSave(ctx context.Context, workID string, slot int, payload *models.SavePayload) error {
	args := m.Called(ctx, workID, slot, payload)
	return args.Error(0)
}

func (m *SaveStore) GetSave(ctx context.Context, workID string, slot int) (*models.SavePayload, error) {
	args := m.Called(ctx, workID, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavePayload), args.Error(1)
}

func (m *SaveStore) DeleteSave(ctx context.Context, workID string, slot int) error {
	args := m.Called(ctx, workID, slot)
	return args.Error(0)
}
