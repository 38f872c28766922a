package interfaces

import (
	"context"

	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

// StoryAPIClient is the narrow contract to the content backend. The
// progression core never talks HTTP directly; it consumes this interface
// so transport stays a collaborator concern.
type StoryAPIClient interface {
	// GetWork returns the read-only work description.
	GetWork(ctx context.Context, workID string) (*models.Work, error)

	// GetChapter fetches the chapter envelope for a 1-based index. The
	// envelope status may be pending/generating while the backend is
	// still producing content.
	GetChapter(ctx context.Context, workID string, chapterIndex int) (*schemas.ChapterEnvelope, error)

	// GenerateChapter asks the backend to (re)generate a chapter.
	GenerateChapter(ctx context.Context, workID string, chapterIndex int, req schemas.GenerateChapterRequest) error

	// ListEndings returns the candidate endings in backend list order.
	ListEndings(ctx context.Context, workID string) ([]schemas.EndingSummary, error)

	// GetEnding fetches a single ending by its stable 1-based index.
	GetEnding(ctx context.Context, workID string, endingIndex int) (*schemas.EndingEnvelope, error)

	// GenerateEnding asks the backend to (re)generate an ending.
	GenerateEnding(ctx context.Context, workID string, endingIndex int, req schemas.GenerateEndingRequest) error

	// GetWorkStatus returns per-chapter backend statuses.
	GetWorkStatus(ctx context.Context, workID string) (*schemas.WorkStatus, error)

	// SaveChapter persists the current (possibly creator-edited) chapter
	// content back to the backend, marking it saved.
	SaveChapter(ctx context.Context, workID string, chapter *models.Chapter) error
}

// SaveStore is the external key/value save service. Slots run from
// models.MinSaveSlot to models.MaxSaveSlot; GetSave returns
// models.ErrSaveNotFound for an empty slot.
type SaveStore interface {
	PutSave(ctx context.Context, workID string, slot int, payload *models.SavePayload) error
	GetSave(ctx context.Context, workID string, slot int) (*models.SavePayload, error)
	DeleteSave(ctx context.Context, workID string, slot int) error
}
