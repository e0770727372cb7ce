package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Checker answers whether a user's external workspace connection is
// established. Linking requires it; the OAuth handshake itself happens
// elsewhere.
type Checker interface {
	Connected(ctx context.Context, userID int64) (bool, error)
}

// HTTPChecker asks the workspace connection service.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPChecker builds a checker against the workspace connection API.
func NewHTTPChecker(baseURL string, logger *zap.Logger) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPChecker) Connected(ctx context.Context, userID int64) (bool, error) {
	url := fmt.Sprintf("%s/connections/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build connection request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query workspace connection: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		c.logger.Warn("workspace connection check failed",
			zap.Int64("user_id", userID),
			zap.Int("status", resp.StatusCode),
		)
		return false, fmt.Errorf("workspace connection check: status %d", resp.StatusCode)
	}

	var body struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode connection response: %w", err)
	}
	return body.Connected, nil
}
