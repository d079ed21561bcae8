package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects for run-completion events, one per pipeline engine.
const (
	SubjectSyncCompleted      = "cs.sync.completed"
	SubjectReconcileCompleted = "cs.reconcile.completed"
	SubjectBackfillCompleted  = "cs.backfill.completed"
	SubjectClassifyCompleted  = "cs.classify.completed"
)

var runSubjects = map[string]string{
	"sync":      SubjectSyncCompleted,
	"reconcile": SubjectReconcileCompleted,
	"backfill":  SubjectBackfillCompleted,
	"classify":  SubjectClassifyCompleted,
}

// subjectFor maps an engine name to its completion subject. Unknown
// engines still get a well-formed subject so nothing is dropped.
func subjectFor(engine string) string {
	if s, ok := runSubjects[engine]; ok {
		return s
	}
	return fmt.Sprintf("cs.%s.completed", engine)
}

// RunEvent is the envelope published when a pipeline run finishes.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Engine     string    `json:"engine"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    any       `json:"summary"`
}

// Publisher emits pipeline events over NATS. A Publisher with no
// connection (NATS_URL unset) is valid and drops everything silently,
// so callers never need to branch on whether eventing is configured.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		logger.Warn("NATS not configured, run events disabled")
		return &Publisher{logger: logger}, nil
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("NATS connected", "url", url)

	return &Publisher{conn: nc, logger: logger}, nil
}

// RunCompleted publishes a run summary for the given engine. The engine
// name selects the subject, e.g. "sync" publishes to cs.sync.completed.
func (p *Publisher) RunCompleted(engine string, startedAt time.Time, summary any) error {
	if p.conn == nil {
		return nil
	}

	ev := RunEvent{
		RunID:      uuid.NewString(),
		Engine:     engine,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Summary:    summary,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	subject := subjectFor(engine)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Info("run event published", "subject", subject, "run_id", ev.RunID)
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
