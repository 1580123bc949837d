// Package oracle provides the HTTP client for the decision and
// content-analysis oracle: an OpenAI-compatible chat-completions
// service that plays the role of every simulated user's brain.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/domain"
)

// Config holds oracle client configuration.
type Config struct {
	APIURL            string
	APIKey            string
	Model             string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns default oracle client configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:            "https://api.openai.com/v1",
		RequestTimeout:    30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Client talks to an OpenAI-compatible endpoint. It implements the
// agent decision port and the content-analysis port.
type Client struct {
	client  *http.Client
	apiURL  string
	apiKey  string
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Interface guard: the client is the production decision port.
var _ agent.DecisionPort = (*Client)(nil)

// NewClient creates an oracle client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		return nil, errors.New("oracle model is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		apiURL:  apiURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}, nil
}

// Decide asks the oracle what the user does this round.
func (c *Client) Decide(ctx context.Context, profile domain.UserProfile, memory []agent.Observation, stim agent.Stimulus) (domain.Action, error) {
	content, err := c.complete(ctx, decisionSystemPrompt, buildDecisionPrompt(profile, memory, stim))
	if err != nil {
		return domain.Action{}, err
	}

	act, err := parseDecision(content)
	if err != nil {
		return domain.Action{}, fmt.Errorf("parse decision: %w", err)
	}
	return act, nil
}

// SentimentOf returns a sentiment scalar in [-1,1] for the text.
func (c *Client) SentimentOf(ctx context.Context, text string) (float64, error) {
	content, err := c.complete(ctx, sentimentSystemPrompt, text)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil {
		return 0, fmt.Errorf("parse sentiment %q: %w", content, err)
	}
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}

// StanceOf classifies the stance expressed by the text.
func (c *Client) StanceOf(ctx context.Context, text string) (domain.Stance, error) {
	content, err := c.complete(ctx, stanceSystemPrompt, text)
	if err != nil {
		return "", err
	}
	switch s := domain.Stance(strings.ToLower(strings.TrimSpace(content))); s {
	case domain.StanceSupport, domain.StanceOppose, domain.StanceNeutral:
		return s, nil
	default:
		return "", fmt.Errorf("unknown stance %q", content)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete performs one non-streaming chat completion.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Surface deadline expiry directly so callers can classify it
		// as a decision timeout.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("oracle: request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close oracle response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oracle: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("oracle: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("oracle: empty response")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
