// Package classify selects unclassified end-user messages, batches them
// per conversation through the external classifier, persists the results
// and keeps the retry ledger for failures.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sinisterchilll/cs-analytics/internal/classifier"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

const (
	// batchCap bounds one classification call to the first messages of a
	// conversation; the rest become eligible again next run.
	batchCap = 20

	// retryPullSize bounds how many ledger entries one run re-attempts.
	retryPullSize = 50

	// retryDelay is how far out a failed message is rescheduled.
	retryDelay = time.Hour

	defaultMaxConversations = 100
)

// Store is the persistence surface the engine needs.
type Store interface {
	UnanalyzedMessages(ctx context.Context, limit int) ([]models.Message, error)
	RetryableMessages(ctx context.Context, now time.Time, limit int) ([]models.Message, error)
	UpsertAnalysis(ctx context.Context, a models.MessageAnalysis) error
	RecordFailure(ctx context.Context, f models.AnalysisFailure) error
}

// Engine is one classification run. Restartable: all state lives in the
// store.
type Engine struct {
	store      Store
	classifier classifier.BatchClassifier
	model      string
	logger     *slog.Logger

	maxConversations int
	convDelay        time.Duration
	sleep            func(time.Duration)
	now              func() time.Time
}

// Summary is the run's outcome, logged and optionally published.
type Summary struct {
	RetriedMessages    int `json:"retried_messages"`
	ClassifiedMessages int `json:"classified_messages"`
	FailedMessages     int `json:"failed_messages"`
	Conversations      int `json:"conversations"`
	SkippedShort       int `json:"skipped_short"`
}

func New(s Store, bc classifier.BatchClassifier, model string, maxConversations int, logger *slog.Logger) *Engine {
	if maxConversations <= 0 {
		maxConversations = defaultMaxConversations
	}
	return &Engine{
		store:            s,
		classifier:       bc,
		model:            model,
		logger:           logger,
		maxConversations: maxConversations,
		convDelay:        100 * time.Millisecond,
		sleep:            time.Sleep,
		now:              time.Now,
	}
}

// Run re-attempts due ledger entries first, then classifies newly
// eligible messages, conversation by conversation.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	retryable, err := e.store.RetryableMessages(ctx, e.now(), retryPullSize)
	if err != nil {
		return sum, err
	}
	for _, batch := range groupByConversation(retryable) {
		n := e.processBatch(ctx, batch, &sum)
		sum.RetriedMessages += n
		e.sleep(e.convDelay)
	}

	pending, err := e.store.UnanalyzedMessages(ctx, e.maxConversations*batchCap)
	if err != nil {
		return sum, err
	}
	batches := groupByConversation(pending)
	if len(batches) > e.maxConversations {
		e.logger.Info("conversation cap reached, deferring remainder",
			"cap", e.maxConversations,
			"deferred", len(batches)-e.maxConversations,
		)
		batches = batches[:e.maxConversations]
	}
	for _, batch := range batches {
		e.processBatch(ctx, batch, &sum)
		sum.Conversations++
		e.sleep(e.convDelay)
	}

	e.logger.Info("classification run complete",
		"conversations", sum.Conversations,
		"classified", sum.ClassifiedMessages,
		"retried", sum.RetriedMessages,
		"failed", sum.FailedMessages,
		"skipped_short", sum.SkippedShort,
	)
	return sum, nil
}

// processBatch classifies up to batchCap messages of one conversation and
// persists results or ledger entries. Returns how many messages were
// actually sent to the model.
func (e *Engine) processBatch(ctx context.Context, batch []models.Message, sum *Summary) int {
	eligible := make([]models.Message, 0, len(batch))
	for _, m := range batch {
		if IsShort(m.Content) {
			sum.SkippedShort++
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return 0
	}
	if len(eligible) > batchCap {
		eligible = eligible[:batchCap]
	}

	items := make([]classifier.Item, len(eligible))
	for i, m := range eligible {
		items[i] = classifier.Item{Role: m.Role, Text: m.Content}
	}

	convID := eligible[0].ConversationID
	results, err := e.classifier.ClassifyBatch(ctx, items)
	if err != nil {
		e.recordBatchFailure(ctx, eligible, err, sum)
		return len(eligible)
	}

	now := e.now()
	for i, m := range eligible {
		r := results[i]
		category := NormalizeCategory(r.Category)
		analysis := models.MessageAnalysis{
			MessageID:  m.ID,
			Language:   NormalizeLanguage(r.Language),
			Category:   category,
			Tag:        TagFor(category),
			Confidence: clampConfidence(r.Confidence),
			Model:      e.model,
			AnalyzedAt: now,
		}
		if err := e.store.UpsertAnalysis(ctx, analysis); err != nil {
			e.logger.Error("failed to persist analysis",
				"message_id", m.ID,
				"conversation_id", convID,
				"error", err,
			)
			continue
		}
		sum.ClassifiedMessages++
	}
	return len(eligible)
}

// recordBatchFailure marks every message of the batch failed. This is
// coarse: one bad message re-queues its batch-mates too.
func (e *Engine) recordBatchFailure(ctx context.Context, batch []models.Message, cause error, sum *Summary) {
	kind := classifier.KindOf(cause)
	now := e.now()

	e.logger.Warn("classification batch failed",
		"conversation_id", batch[0].ConversationID,
		"messages", len(batch),
		"kind", string(kind),
		"error", cause,
	)

	for _, m := range batch {
		failure := models.AnalysisFailure{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			LastError:      cause.Error(),
			Kind:           kind,
			LastAttemptAt:  now,
			NextRetryAt:    now.Add(retryDelay),
		}
		if err := e.store.RecordFailure(ctx, failure); err != nil {
			e.logger.Error("failed to record classification failure",
				"message_id", m.ID,
				"error", err,
			)
			continue
		}
		sum.FailedMessages++
	}
}

// IsShort reports whether a message is too short to classify. Short
// acknowledgements must never enter the retry ledger. Length is counted
// in characters, not bytes, so non-Latin scripts are measured the same
// way the store's char_length filter measures them.
func IsShort(content string) bool {
	return len(strings.Fields(content)) <= 2 || utf8.RuneCountInString(content) <= 10
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// groupByConversation splits messages into per-conversation batches,
// preserving the input's conversation order and each conversation's
// creation-time order.
func groupByConversation(msgs []models.Message) [][]models.Message {
	var (
		order   []string
		grouped = make(map[string][]models.Message)
	)
	for _, m := range msgs {
		if _, ok := grouped[m.ConversationID]; !ok {
			order = append(order, m.ConversationID)
		}
		grouped[m.ConversationID] = append(grouped[m.ConversationID], m)
	}

	out := make([][]models.Message, 0, len(order))
	for _, id := range order {
		out = append(out, grouped[id])
	}
	return out
}
