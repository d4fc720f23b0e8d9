package compare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPExtractor asks an external extraction service for the plain text of a
// deck file. Extraction itself (slide parsing) stays outside this process.
type HTTPExtractor struct {
	client  *http.Client
	baseURL string
}

// NewHTTPExtractor creates an extractor client for the given service URL.
func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, filename string) (string, error) {
	body, _ := json.Marshal(map[string]string{"filename": filename})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extract %s: status %d", filename, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode extract response: %w", err)
	}
	return result.Text, nil
}
