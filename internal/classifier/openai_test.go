package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

func completionBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func testOpenAI(t *testing.T, baseURL string) *OpenAI {
	t.Helper()
	c := NewOpenAIWithBaseURL("test-key", "test-model", baseURL, slog.Default())
	c.sleep = func(time.Duration) {}
	return c
}

func TestClassifyBatch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`[{"language":"en","category":"battery_problem","confidence":0.91},{"language":"en","category":"others","confidence":0.4}]`))
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	results, err := c.ClassifyBatch(context.Background(), []Item{
		{Role: "user", Text: "battery dies in an hour"},
		{Role: "bot", Text: "let me check"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Category != "battery_problem" || results[0].Confidence != 0.91 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestClassifyBatch_CodeFencedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("```json\n[{\"language\":\"hi\",\"category\":\"kyc\",\"confidence\":0.8}]\n```"))
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	results, err := c.ClassifyBatch(context.Background(), []Item{{Role: "user", Text: "kyc documents where to upload"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Category != "kyc" {
		t.Errorf("category = %q", results[0].Category)
	}
}

func TestClassifyBatch_LengthMismatchIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`[{"language":"en","category":"others","confidence":0.5}]`))
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	_, err := c.ClassifyBatch(context.Background(), []Item{
		{Role: "user", Text: "first message goes here"},
		{Role: "user", Text: "second message goes here"},
	})
	if err == nil {
		t.Fatal("expected parse error for length mismatch")
	}
	if KindOf(err) != models.FailureParseError {
		t.Errorf("kind = %q, want parse-error", KindOf(err))
	}
}

func TestClassifyBatch_RetriesRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		fmt.Fprint(w, completionBody(`[{"language":"en","category":"payment","confidence":0.7}]`))
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	results, err := c.ClassifyBatch(context.Background(), []Item{{Role: "user", Text: "payment failed but money deducted"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if results[0].Category != "payment" {
		t.Errorf("category = %q", results[0].Category)
	}
}

func TestClassifyBatch_ExhaustedRetriesReportServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	_, err := c.ClassifyBatch(context.Background(), []Item{{Role: "user", Text: "hub location in my city please"}})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != maxCallAttempts {
		t.Errorf("expected %d attempts, got %d", maxCallAttempts, calls)
	}
	if KindOf(err) != models.FailureServerError {
		t.Errorf("kind = %q, want server-error", KindOf(err))
	}
}

func TestClassifyBatch_BadRequestAbortsImmediately(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	c := testOpenAI(t, server.URL+"/v1")
	_, err := c.ClassifyBatch(context.Background(), []Item{{Role: "user", Text: "some classifiable message text"}})
	if err == nil {
		t.Fatal("expected error for bad request")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt (no retry on 400), got %d", calls)
	}
	if KindOf(err) != models.FailureUnknown {
		t.Errorf("kind = %q, want unknown", KindOf(err))
	}
}

func TestClassifyBatch_EmptyBatchIsNoop(t *testing.T) {
	c := testOpenAI(t, "http://127.0.0.1:1/v1") // unreachable: must not be called
	results, err := c.ClassifyBatch(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("empty batch: results=%v err=%v", results, err)
	}
}

func TestKindOf_UnwrappedError(t *testing.T) {
	if KindOf(errors.New("plain")) != models.FailureUnknown {
		t.Error("plain error should map to unknown kind")
	}
	wrapped := fmt.Errorf("outer: %w", &Error{Kind: models.FailureRateLimit, Err: errors.New("inner")})
	if KindOf(wrapped) != models.FailureRateLimit {
		t.Error("wrapped classifier error should keep its kind")
	}
}

var _ BatchClassifier = (*OpenAI)(nil)
