package compare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const comparePrompt = `Below are the text contents of two versions of a slide deck that track research progress on the same topic.
Read both carefully and summarize the key differences between them in a concise, structured way, grouped by theme.

File: %s
---
%s
---

File: %s
---
%s
---

Focus on what is new, what was dropped, and how conclusions changed. Return only the summary text.`

// LLMComparator summarizes the difference between two deck texts using a
// chat-completion endpoint.
type LLMComparator struct {
	client   *http.Client
	provider string // "openai" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
}

// NewLLMComparator creates a comparator for the given provider.
func NewLLMComparator(provider, model, apiKey, baseURL string) *LLMComparator {
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o"
		}
	}
	return &LLMComparator{
		client:   &http.Client{Timeout: 60 * time.Second},
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  baseURL,
	}
}

// Compare returns a structured difference summary of the two texts.
func (c *LLMComparator) Compare(ctx context.Context, prevText, curText, prevLabel, curLabel string) (string, error) {
	prompt := fmt.Sprintf(comparePrompt, prevLabel, prevText, curLabel, curText)

	var raw string
	var err error
	switch c.provider {
	case "anthropic":
		raw, err = c.callAnthropic(ctx, prompt)
	default:
		raw, err = c.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

func (c *LLMComparator) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a helpful assistant that summarizes differences in documents."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *LLMComparator) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

// StaticComparator returns a fixed summary. Used for seeding and backfills
// when no LLM is configured.
type StaticComparator struct {
	Summary string
}

func (s StaticComparator) Compare(ctx context.Context, prevText, curText, prevLabel, curLabel string) (string, error) {
	if s.Summary != "" {
		return s.Summary, nil
	}
	return fmt.Sprintf("Differences between %s and %s not yet summarized.", prevLabel, curLabel), nil
}

// stripFences removes a wrapping markdown code block, if present.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		if strings.HasSuffix(raw, "```") {
			raw = raw[:len(raw)-3]
		}
		raw = strings.TrimSpace(raw)
	}
	return raw
}
