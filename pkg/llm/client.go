// Package llm provides a one-shot completion client for any
// OpenAI-compatible chat endpoint. The model is treated as unreliable:
// callers must tolerate malformed output and degrade to their deterministic
// fallbacks on any error.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Client performs single-shot chat completions.
type Client struct {
	http    *resty.Client
	model   string
	limiter *rate.Limiter
}

// New builds a client against an OpenAI-compatible base URL.
func New(baseURL, apiKey, model string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(30 * time.Second).
		SetRetryCount(1)

	return &Client{
		http:    rc,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(0.5), 2),
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends systemPrompt (+ optional userContent) and returns the raw
// model text. The response_format hint asks for JSON, but callers must still
// parse defensively.
func (c *Client) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	msgs := []chatMessage{{Role: "system", Content: systemPrompt}}
	if userContent != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: userContent})
	}

	body := chatRequest{
		Model:          c.model,
		Messages:       msgs,
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	var out chatResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: completion request: %w", err)
	}
	if res.IsError() {
		// Try to surface the API's own message for rate limits etc.
		var apiErr chatResponse
		if jsonErr := json.Unmarshal(res.Body(), &apiErr); jsonErr == nil && apiErr.Error != nil {
			return "", fmt.Errorf("llm: %s (status %d)", apiErr.Error.Message, res.StatusCode())
		}
		return "", fmt.Errorf("llm: completion status %d", res.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return out.Choices[0].Message.Content, nil
}
