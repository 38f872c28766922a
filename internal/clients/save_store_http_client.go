package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.SaveStore = (*HTTPSaveStore)(nil)

// HTTPSaveStore keeps slot payloads on the backend's save API, for
// deployments without a local Redis.
type HTTPSaveStore struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPSaveStore(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSaveStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSaveStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("HTTPSaveStore"),
	}
}

func (s *HTTPSaveStore) slotURL(workID string, slot int) string {
	return fmt.Sprintf("%s/api/works/%s/saves/%d", s.baseURL, workID, slot)
}

func (s *HTTPSaveStore) PutSave(ctx context.Context, workID string, slot int, payload *models.SavePayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal save payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.slotURL(workID, slot), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("save store returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSaveStore) GetSave(ctx context.Context, workID string, slot int) (*models.SavePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.slotURL(workID, slot), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrSaveNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("save store returned status %d", resp.StatusCode)
	}
	var payload models.SavePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode save payload: %w", err)
	}
	return &payload, nil
}

func (s *HTTPSaveStore) DeleteSave(ctx context.Context, workID string, slot int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.slotURL(workID, slot), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("save store returned status %d", resp.StatusCode)
	}
	return nil
}
