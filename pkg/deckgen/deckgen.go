package deckgen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options carries caller-supplied metadata for a generation run.
type Options struct {
	Language   string
	StartYear  int
	EndYear    int
	SlideCount int
}

// Client drives the two-stage deck pipeline: an outline agent turns a topic
// into an outline, a deck agent turns the outline into slide content. Both
// stages stream text fragments that are assembled into the final result.
type Client struct {
	client     *http.Client
	outlineURL string
	deckURL    string
}

// New creates a pipeline client. timeout bounds each stage.
func New(outlineURL, deckURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		client:     &http.Client{Timeout: timeout},
		outlineURL: outlineURL,
		deckURL:    deckURL,
	}
}

// Generate runs both stages and returns the assembled deck content.
func (c *Client) Generate(ctx context.Context, topic string, opts Options) (string, error) {
	if opts.Language == "" {
		opts.Language = "Chinese"
	}
	if opts.SlideCount <= 0 {
		opts.SlideCount = 12
	}

	outlineMeta := map[string]any{
		"language": opts.Language,
	}
	if opts.StartYear > 0 && opts.EndYear > 0 {
		outlineMeta["select_time"] = []map[string]int{
			{"sTimeYear": opts.StartYear, "eTimeYear": opts.EndYear},
		}
	}
	outline, err := c.stream(ctx, c.outlineURL, topic, outlineMeta)
	if err != nil {
		return "", fmt.Errorf("outline stage: %w", err)
	}

	deck, err := c.stream(ctx, c.deckURL, outline, map[string]any{"numSlides": opts.SlideCount})
	if err != nil {
		return "", fmt.Errorf("deck stage: %w", err)
	}
	return deck, nil
}

// stream sends one message to an agent endpoint and assembles the streamed
// reply. Each event line carries a JSON chunk whose artifact parts (or, for
// status updates, status-message parts) contribute text fragments.
func (c *Client) stream(ctx context.Context, url, prompt string, metadata map[string]any) (string, error) {
	requestID := uuid.NewString()
	message := map[string]any{
		"role":      "user",
		"parts":     []map[string]string{{"kind": "text", "text": prompt}},
		"messageId": requestID,
	}
	if metadata != nil {
		message["metadata"] = metadata
	}
	payload := map[string]any{
		"id":      requestID,
		"message": message,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call agent %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent %s status %d", url, resp.StatusCode)
	}

	var chunks []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "data:")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var chunk struct {
			Result struct {
				Artifact *struct {
					Parts []part `json:"parts"`
				} `json:"artifact"`
				Status struct {
					Message struct {
						Parts []part `json:"parts"`
					} `json:"message"`
				} `json:"status"`
			} `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue // non-JSON keepalive lines
		}

		parts := chunk.Result.Status.Message.Parts
		if chunk.Result.Artifact != nil {
			parts = chunk.Result.Artifact.Parts
		}
		for _, p := range parts {
			if p.Kind == "text" && p.Text != "" {
				chunks = append(chunks, p.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read agent stream: %w", err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("agent %s: empty response", url)
	}
	return strings.Join(chunks, "\n"), nil
}

type part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// DeckFilename returns the stored filename for a topic's deck generated at t.
// Path separators in the topic name are replaced so the file cannot land
// outside the decks directory.
func DeckFilename(topic string, t time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, topic)
	slug = strings.Trim(slug, ". ")
	if slug == "" {
		slug = "deck"
	}
	return fmt.Sprintf("%s_%s.md", slug, t.Format("2006-01-02"))
}
