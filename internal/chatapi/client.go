// Package chatapi wraps the external support-chat HTTP API: a paged REST
// surface listing users, their conversations and per-conversation messages.
// All listing calls go through paginate, which self-throttles and defends
// against misbehaving servers.
package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/ratelimit"
)

const (
	pageSize = 50

	// fetch retries on HTTP 429 only; anything else propagates to the
	// caller, which decides per-entity whether to abort or continue.
	maxFetchAttempts = 4
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	// Test hooks. backoffBase drives the 429 retry schedule (doubling);
	// pageDelay is the fixed inter-page self-throttle.
	backoffBase time.Duration
	pageDelay   time.Duration
	sleep       func(time.Duration)
}

func NewClient(baseURL, apiKey string, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 60 * time.Second},
		limiter:     limiter,
		logger:      logger,
		backoffBase: time.Second,
		pageDelay:   500 * time.Millisecond,
		sleep:       time.Sleep,
	}
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// fetch performs one GET against endpoint with the given query and page
// number, decoding the body as a field map. HTTP 429 is retried up to
// maxFetchAttempts with exponential backoff starting at backoffBase.
func (c *Client) fetch(ctx context.Context, endpoint string, query url.Values, page int) (map[string]json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("items_per_page", strconv.Itoa(pageSize))

	reqURL := c.baseURL + endpoint + "?" + q.Encode()

	backoff := c.backoffBase
	for attempt := 1; ; attempt++ {
		body, status, err := c.do(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= maxFetchAttempts {
				return nil, fmt.Errorf("fetch %s: throttled after %d attempts", endpoint, attempt)
			}
			c.logger.Warn("chat api throttled, backing off",
				"endpoint", endpoint,
				"attempt", attempt,
				"backoff", backoff.String(),
			)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		if status != http.StatusOK {
			var errResp errorResponse
			if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
				return nil, fmt.Errorf("fetch %s: api error %d: %s: %s", endpoint, status, errResp.Error.Code, errResp.Error.Message)
			}
			return nil, fmt.Errorf("fetch %s: api error %d", endpoint, status)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("fetch %s: decode response: %w", endpoint, err)
		}
		return fields, nil
	}
}

func (c *Client) do(ctx context.Context, reqURL string) ([]byte, int, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ListUsers returns all users updated within [from, to].
func (c *Client) ListUsers(ctx context.Context, from, to time.Time) ([]User, error) {
	q := url.Values{}
	q.Set("updated_from", from.UTC().Format(time.RFC3339))
	q.Set("updated_to", to.UTC().Format(time.RFC3339))

	items, err := c.paginate(ctx, "/v2/users", q, "users")
	if err != nil {
		return nil, err
	}
	return decodeItems[User](items, "user")
}

// ListUserConversations returns every conversation belonging to a user.
// The API offers no time filter at this level.
func (c *Client) ListUserConversations(ctx context.Context, userID string) ([]ConversationRef, error) {
	items, err := c.paginate(ctx, "/v2/users/"+url.PathEscape(userID)+"/conversations", nil, "conversations")
	if err != nil {
		return nil, err
	}
	return decodeItems[ConversationRef](items, "conversation")
}

// GetConversation fetches the full detail of one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	body, status, err := c.do(ctx, c.baseURL+"/v2/conversations/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get conversation %s: api error %d", id, status)
	}
	var conv Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, fmt.Errorf("get conversation %s: decode: %w", id, err)
	}
	return &conv, nil
}

// ListMessages returns a conversation's messages, server-side filtered to
// those created at or after from when from is non-zero.
func (c *Client) ListMessages(ctx context.Context, conversationID string, from time.Time) ([]Message, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from_time", from.UTC().Format(time.RFC3339))
	}

	items, err := c.paginate(ctx, "/v2/conversations/"+url.PathEscape(conversationID)+"/messages", q, "messages")
	if err != nil {
		return nil, err
	}
	msgs, err := decodeItems[Message](items, "message")
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return msgs, nil
}

func decodeItems[T any](items []json.RawMessage, kind string) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}
