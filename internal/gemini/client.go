// Package gemini talks to the Gemini API: chat completion for replies and
// the Files API for ingesting reference documents.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/session"
)

const defaultRetryDelay = 2 * time.Second

// Client generates replies with one configured model.
type Client struct {
	genai      *genai.Client
	log        *slog.Logger
	model      string
	content    genai.GenerateContentConfig
	maxRetries uint64
	retryDelay time.Duration
}

// New creates a Client for the Gemini API backend. A non-empty BaseURL
// replaces the public endpoint.
func New(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gi, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	content := genai.GenerateContentConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		TopP:             genai.Ptr(cfg.TopP),
		TopK:             genai.Ptr(cfg.TopK),
		MaxOutputTokens:  cfg.MaxOutputTokens,
		ResponseMIMEType: cfg.ResponseMIMEType,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &Client{
		genai:      gi,
		log:        logger,
		model:      cfg.Model,
		content:    content,
		maxRetries: uint64(maxRetries),
		retryDelay: retryDelay,
	}, nil
}

// Files returns the Files API as an ingestion remote service.
func (c *Client) Files() *FileService {
	return NewFileService(c.genai.Files, c.log)
}

// Generate sends the prompt and returns the reply text. Rate limits and
// transient server errors are retried.
func (c *Client) Generate(ctx context.Context, prompt session.Prompt) (string, error) {
	if len(prompt.Turns) == 0 {
		return "", errors.New("prompt has no turns")
	}

	cfg := c.content
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	contents := toContents(prompt.Turns)

	var resp *genai.GenerateContentResponse
	attempt := 0
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewConstant(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := c.genai.Models.GenerateContent(ctx, c.model, contents, &cfg)
		if err == nil {
			resp = r
			return nil
		}
		if code, ok := retryable(err); ok {
			c.log.WarnContext(ctx, "Gemini API call failed, retrying",
				"attempt", attempt, "max_retries", c.maxRetries, "code", code, "delay", c.retryDelay)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini API call failed", "attempts", attempt, "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return c.extractText(ctx, resp)
}

func retryable(err error) (int, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return apiErr.Code, true
	}
	return apiErr.Code, false
}

func toContents(turns []session.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Artifacts)+1)
		for _, a := range turn.Artifacts {
			parts = append(parts, genai.NewPartFromURI(a.Location, a.Kind))
		}
		if turn.Text != "" {
			parts = append(parts, genai.NewPartFromText(turn.Text))
		}
		role := genai.RoleUser
		if turn.Role == session.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return contents
}

func (c *Client) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini returned no response")
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			reason = fb.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finish := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finish = string(resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing content", "finish_reason", finish)
		return "", fmt.Errorf("gemini returned no content, finish reason: %s", finish)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}
