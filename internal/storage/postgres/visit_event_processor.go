package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/analytics"
)

// VisitEventProcessor applies a replayed visit event exactly once. The
// processed_events insert is the idempotency gate: a duplicate delivery
// short-circuits before any counter moves.
type VisitEventProcessor struct {
	db       *db.Postgres
	pipeline *analytics.Pipeline
}

func NewVisitEventProcessor(p *db.Postgres, pipeline *analytics.Pipeline) (*VisitEventProcessor, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is nil")
	}
	return &VisitEventProcessor{db: p, pipeline: pipeline}, nil
}

func (p *VisitEventProcessor) Process(
	ctx context.Context,
	eventID string,
	key string,
	visit analytics.Visit,
) (alreadyProcessed bool, err error) {
	eventID = strings.TrimSpace(eventID)
	key = strings.TrimSpace(key)
	if eventID == "" {
		return false, errors.New("eventID must not be empty")
	}
	if key == "" {
		return false, errors.New("key must not be empty")
	}

	tx, err := p.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertOnce = `
		INSERT INTO processed_events (event_id, processed_at)
		VALUES (@event_id, @processed_at)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insertOnce, pgx.NamedArgs{
		"event_id":     eventID,
		"processed_at": toTimestamptz(time.Now().UTC()),
	})
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return true, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	// Record never blocks a visit on partial failures; the joined error is
	// surfaced for logging only.
	return false, p.pipeline.Record(ctx, key, visit)
}
