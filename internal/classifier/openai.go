package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

const systemPrompt = `You are a message classifier for an electric-bike customer support desk.
For every numbered input message, produce exactly one JSON object with:
- "language": one of en, hi, bn, te, ta, mr, unknown
- "category": one of kyc, app_related, payment, others, price_inquiry, hub_inquiry, offer_inquiry, bike_inquiry, bike_not_moving, battery_problem
- "confidence": a number between 0 and 1

Messages from the bot and agent roles are context only; still emit an object
for each input so the output array has the same length and order as the input.
Reply with a JSON array only, no prose, no code fences.`

// Retry schedules for the within-call retry loop. A rate-limited call
// waits longer than a server fault before the next attempt.
var (
	rateLimitBackoff   = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	serverErrorBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
)

const maxCallAttempts = 3

// OpenAI classifies batches through the chat-completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger

	sleep func(time.Duration)
}

func NewOpenAI(apiKey, model string, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// NewOpenAIWithBaseURL targets a non-default endpoint. Tests point this at
// a local server.
func NewOpenAIWithBaseURL(apiKey, model, baseURL string, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Model returns the configured model identifier, recorded on every
// analysis row.
func (c *OpenAI) Model() string {
	return c.model
}

// ClassifyBatch sends one conversation's messages to the model. Rate
// limits and server faults are retried up to maxCallAttempts with their
// respective backoff schedules; any other failure aborts immediately.
func (c *OpenAI) ClassifyBatch(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(items)

	var lastErr error
	for attempt := 1; attempt <= maxCallAttempts; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0,
		})
		if err != nil {
			kind := apiErrorKind(err)
			lastErr = &Error{Kind: kind, Err: err}

			backoff, retryable := backoffFor(kind, attempt)
			if !retryable || attempt == maxCallAttempts {
				return nil, lastErr
			}
			c.logger.Warn("classification call failed, retrying",
				"kind", string(kind),
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", err,
			)
			c.sleep(backoff)
			continue
		}

		if len(resp.Choices) == 0 {
			return nil, &Error{Kind: models.FailureParseError, Err: errors.New("empty completion")}
		}
		results, err := parseResults(resp.Choices[0].Message.Content, len(items))
		if err != nil {
			return nil, &Error{Kind: models.FailureParseError, Err: err}
		}
		return results, nil
	}
	return nil, lastErr
}

func buildPrompt(items []Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Classify these %d messages:\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, item.Role, item.Text)
	}
	return sb.String()
}

// parseResults decodes the model output, tolerating code fences, and
// enforces the same-length contract.
func parseResults(raw string, want int) ([]Result, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var results []Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if len(results) != want {
		return nil, fmt.Errorf("model returned %d results for %d messages", len(results), want)
	}
	return results, nil
}

// apiErrorKind maps a transport failure to its ledger kind: 429 is a rate
// limit, 5xx a server fault, anything else unknown.
func apiErrorKind(err error) models.FailureKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return models.FailureRateLimit
		case apiErr.HTTPStatusCode >= 500:
			return models.FailureServerError
		}
		return models.FailureUnknown
	}
	return models.FailureUnknown
}

func backoffFor(kind models.FailureKind, attempt int) (time.Duration, bool) {
	idx := attempt - 1
	switch kind {
	case models.FailureRateLimit:
		return rateLimitBackoff[idx%len(rateLimitBackoff)], true
	case models.FailureServerError:
		return serverErrorBackoff[idx%len(serverErrorBackoff)], true
	}
	return 0, false
}
