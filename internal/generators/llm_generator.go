package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"volitus/server/internal/config"
	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
	"volitus/server/internal/prompts"
)

const (
	defaultModel = "doubao-seed-1-6-250615"
	maxRetries   = 3
	retryDelay   = 1 * time.Second
)

// LLMGenerator asks an OpenAI compatible chat model for chapter branches
type LLMGenerator struct {
	client      *openai.Client
	prompts     *prompts.TemplateEngine
	model       string
	maxTokens   int
	temperature float32
	retryDelay  time.Duration
	log         zerolog.Logger
}

// llmReply is the JSON object the model is asked to produce
type llmReply struct {
	Options []struct {
		ID      string          `json:"id"`
		Label   string          `json:"label"`
		Chapter *models.Chapter `json:"chapter"`
	} `json:"options"`
}

// NewLLMGenerator creates a generator against cfg.BaseURL
func NewLLMGenerator(cfg config.LLMConfig, engine *prompts.TemplateEngine, log zerolog.Logger) *LLMGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if engine == nil {
		engine = prompts.NewTemplateEngine()
	}

	return &LLMGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		prompts:     engine,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retryDelay:  retryDelay,
		log:         log,
	}
}

// GenerateOptions renders the branch prompt, calls the model and decodes its
// JSON answer. Every failure is reported as errs.ErrUnavailable.
func (g *LLMGenerator) GenerateOptions(ctx context.Context, req interfaces.GenerateRequest) ([]models.VoteOption, error) {
	tctx := prompts.BuildChapterContext(req)
	system, err := g.prompts.Render(prompts.ChapterBranchesSystem, tctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	user, err := g.prompts.Render(prompts.ChapterBranchesUser, tctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}

	content, err := g.chat(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		g.log.Error().Err(err).Str("room_id", req.RoomID).Msg("branch generation failed")
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}

	options, err := parseReply(content, req.NumOptions)
	if err != nil {
		g.log.Warn().Err(err).Str("room_id", req.RoomID).Msg("unusable model reply")
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}

	g.log.Info().Str("room_id", req.RoomID).Int("options", len(options)).Msg("branches generated")
	return options, nil
}

// chat sends a chat completion with retries on transient failures
func (g *LLMGenerator) chat(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("empty response")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// parseReply decodes the model answer into vote options. Missing ids are
// filled with A, B, C... in order; options without a chapter are dropped.
func parseReply(content string, limit int) ([]models.VoteOption, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var reply llmReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("invalid JSON reply: %w", err)
	}

	var options []models.VoteOption
	seen := make(map[string]bool)
	for _, opt := range reply.Options {
		if opt.Chapter == nil {
			continue
		}
		id := strings.TrimSpace(opt.ID)
		if id == "" || seen[id] {
			id = string(rune('A' + len(options)))
		}
		seen[id] = true

		label := opt.Label
		if label == "" {
			label = "Option " + id
		}
		options = append(options, models.VoteOption{ID: id, Label: label, Chapter: opt.Chapter})
		if limit > 0 && len(options) == limit {
			break
		}
	}

	if len(options) == 0 {
		return nil, fmt.Errorf("reply has no usable options")
	}
	return options, nil
}

// isRetryableError checks if an error is worth another attempt
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429")
}
