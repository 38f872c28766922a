package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.StoryAPIClient = (*HTTPStoryAPIClient)(nil)

// HTTPStoryAPIClient talks to the content backend over its JSON API.
type HTTPStoryAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPStoryAPIClient creates a client for the content backend. A zero
// timeout gets a 30s default; chapter polling wraps individual short
// calls, so no single request needs a long deadline.
func NewHTTPStoryAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPStoryAPIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStoryAPIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("HTTPStoryAPIClient"),
	}
}

func (c *HTTPStoryAPIClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := c.mapStatus(resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *HTTPStoryAPIClient) postJSON(ctx context.Context, url string, body interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()
	return c.mapStatus(resp.StatusCode)
}

// mapStatus translates backend HTTP statuses into domain sentinels.
func (c *HTTPStoryAPIClient) mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return models.ErrNotFound
	case code == http.StatusConflict:
		return models.ErrGenerationInProgress
	case code == http.StatusBadRequest:
		return models.ErrBadRequest
	case code >= 500:
		return fmt.Errorf("backend returned status %d: %w", code, models.ErrInternalServer)
	default:
		return fmt.Errorf("backend returned unexpected status %d", code)
	}
}

func (c *HTTPStoryAPIClient) GetWork(ctx context.Context, workID string) (*models.Work, error) {
	var work models.Work
	url := fmt.Sprintf("%s/api/works/%s", c.baseURL, workID)
	if err := c.getJSON(ctx, url, &work); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrWorkNotFound
		}
		return nil, err
	}
	return &work, nil
}

func (c *HTTPStoryAPIClient) GetChapter(ctx context.Context, workID string, chapterIndex int) (*schemas.ChapterEnvelope, error) {
	var env schemas.ChapterEnvelope
	url := fmt.Sprintf("%s/api/works/%s/chapters/%d", c.baseURL, workID, chapterIndex)
	if err := c.getJSON(ctx, url, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *HTTPStoryAPIClient) GenerateChapter(ctx context.Context, workID string, chapterIndex int, req schemas.GenerateChapterRequest) error {
	url := fmt.Sprintf("%s/api/works/%s/chapters/%d/generate", c.baseURL, workID, chapterIndex)
	if err := c.postJSON(ctx, url, req); err != nil {
		c.logger.Warn("Chapter generation request failed",
			zap.String("workID", workID),
			zap.Int("chapterIndex", chapterIndex),
			zap.Error(err))
		return err
	}
	return nil
}

func (c *HTTPStoryAPIClient) ListEndings(ctx context.Context, workID string) ([]schemas.EndingSummary, error) {
	var payload struct {
		Endings []schemas.EndingSummary `json:"endings"`
	}
	url := fmt.Sprintf("%s/api/works/%s/endings", c.baseURL, workID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	return payload.Endings, nil
}

func (c *HTTPStoryAPIClient) GetEnding(ctx context.Context, workID string, endingIndex int) (*schemas.EndingEnvelope, error) {
	var env schemas.EndingEnvelope
	url := fmt.Sprintf("%s/api/works/%s/endings/%d", c.baseURL, workID, endingIndex)
	if err := c.getJSON(ctx, url, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *HTTPStoryAPIClient) GenerateEnding(ctx context.Context, workID string, endingIndex int, req schemas.GenerateEndingRequest) error {
	url := fmt.Sprintf("%s/api/works/%s/endings/%d/generate", c.baseURL, workID, endingIndex)
	return c.postJSON(ctx, url, req)
}

func (c *HTTPStoryAPIClient) GetWorkStatus(ctx context.Context, workID string) (*schemas.WorkStatus, error) {
	var status schemas.WorkStatus
	url := fmt.Sprintf("%s/api/works/%s/status", c.baseURL, workID)
	if err := c.getJSON(ctx, url, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPStoryAPIClient) SaveChapter(ctx context.Context, workID string, chapter *models.Chapter) error {
	url := fmt.Sprintf("%s/api/works/%s/chapters/%d/save", c.baseURL, workID, chapter.Index)
	if err := c.postJSON(ctx, url, chapter); err != nil {
		c.logger.Warn("Chapter save request failed",
			zap.String("workID", workID),
			zap.Int("chapterIndex", chapter.Index),
			zap.Error(err))
		return err
	}
	return nil
}
