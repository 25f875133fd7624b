package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
)

const outboxStatusPending = "pending"

var ErrOutboxEventNotOwned = errors.New("outbox event not owned by worker")

// VisitOutboxRepository stages visit events in the same database the
// redirect writes to, so publishing to the broker can be retried without
// losing clicks.
type VisitOutboxRepository struct {
	db *db.Postgres
}

type OutboxVisitEvent struct {
	ID          string
	Key         string
	IP          string
	Referer     string
	OccurredAt  time.Time
	TraceParent string
	TraceState  string
	Baggage     string
	Attempts    int
}

func NewVisitOutboxRepository(p *db.Postgres) (*VisitOutboxRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &VisitOutboxRepository{db: p}, nil
}

func (r *VisitOutboxRepository) EnqueueVisit(ctx context.Context, key, ip, referer string, occurredAt time.Time) error {
	now := time.Now().UTC()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	const q = `
		INSERT INTO visit_outbox (event_type, link_key, ip, referer, occurred_at,
		                          traceparent, tracestate, baggage,
		                          status, next_attempt_at, created_at, updated_at)
		VALUES (@event_type, @link_key, @ip, @referer, @occurred_at,
		        @traceparent, @tracestate, @baggage,
		        @status, @next_attempt_at, @created_at, @created_at)`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"event_type":      "visit.recorded",
		"link_key":        key,
		"ip":              ip,
		"referer":         referer,
		"occurred_at":     toTimestamptz(occurredAt),
		"traceparent":     toNullableText(carrier.Get("traceparent")),
		"tracestate":      toNullableText(carrier.Get("tracestate")),
		"baggage":         toNullableText(carrier.Get("baggage")),
		"status":          outboxStatusPending,
		"next_attempt_at": toTimestamptz(now),
		"created_at":      toTimestamptz(now),
	})
	return err
}

func (r *VisitOutboxRepository) ClaimPending(
	ctx context.Context,
	now time.Time,
	limit int64,
	workerID string,
	lease time.Duration,
) ([]OutboxVisitEvent, error) {
	if limit <= 0 {
		limit = 1
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, errors.New("workerID must not be empty")
	}

	const q = `
		UPDATE visit_outbox
		SET attempts = attempts + 1,
		    updated_at = @now,
		    processing_owner = @owner,
		    processing_expires_at = @expires_at
		WHERE id = (
			SELECT id
			FROM visit_outbox
			WHERE status = @status
			  AND next_attempt_at <= @now
			  AND (processing_expires_at IS NULL OR processing_expires_at <= @now)
			ORDER BY next_attempt_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, link_key, ip, referer, occurred_at, traceparent, tracestate, baggage, attempts`

	now = now.UTC()
	events := make([]OutboxVisitEvent, 0, limit)
	for int64(len(events)) < limit {
		row := r.db.Pool.QueryRow(ctx, q, pgx.NamedArgs{
			"now":        toTimestamptz(now),
			"owner":      workerID,
			"expires_at": toTimestamptz(now.Add(lease)),
			"status":     outboxStatusPending,
		})

		var (
			id          pgtype.UUID
			event       OutboxVisitEvent
			occurredAt  pgtype.Timestamptz
			traceparent pgtype.Text
			tracestate  pgtype.Text
			baggage     pgtype.Text
		)
		err := row.Scan(&id, &event.Key, &event.IP, &event.Referer, &occurredAt, &traceparent, &tracestate, &baggage, &event.Attempts)
		if errors.Is(err, pgx.ErrNoRows) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !id.Valid {
			return nil, errors.New("invalid outbox uuid")
		}
		event.ID = uuid.UUID(id.Bytes).String()
		event.OccurredAt = occurredAt.Time.UTC()
		event.TraceParent = nullableTextValue(traceparent)
		event.TraceState = nullableTextValue(tracestate)
		event.Baggage = nullableTextValue(baggage)
		events = append(events, event)
	}

	return events, nil
}

func (r *VisitOutboxRepository) MarkSent(ctx context.Context, id string, workerID string) error {
	pgID, err := parsePgUUID(id)
	if err != nil {
		return err
	}

	const q = `
		UPDATE visit_outbox
		SET status = 'sent',
		    sent_at = @sent_at,
		    updated_at = @sent_at,
		    processing_owner = NULL,
		    processing_expires_at = NULL
		WHERE id = @id AND processing_owner = @owner`

	tag, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"id":      pgID,
		"owner":   workerID,
		"sent_at": toTimestamptz(time.Now().UTC()),
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxEventNotOwned
	}
	return nil
}

func (r *VisitOutboxRepository) MarkRetry(
	ctx context.Context,
	id string,
	workerID string,
	lastError string,
	nextAttemptAt time.Time,
) error {
	pgID, err := parsePgUUID(id)
	if err != nil {
		return err
	}

	const q = `
		UPDATE visit_outbox
		SET status = 'pending',
		    last_error = @last_error,
		    next_attempt_at = @next_attempt_at,
		    updated_at = @updated_at,
		    processing_owner = NULL,
		    processing_expires_at = NULL
		WHERE id = @id AND processing_owner = @owner`

	tag, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"id":              pgID,
		"owner":           workerID,
		"last_error":      toNullableText(lastError),
		"next_attempt_at": toTimestamptz(nextAttemptAt),
		"updated_at":      toTimestamptz(time.Now().UTC()),
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxEventNotOwned
	}
	return nil
}

func parsePgUUID(raw string) (pgtype.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{
		Bytes: id,
		Valid: true,
	}, nil
}
