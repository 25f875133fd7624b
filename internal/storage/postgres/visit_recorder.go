package postgres

import (
	"context"
	"errors"

	"github.com/linkkey/linkkey/internal/processing/analytics"
)

// OutboxVisitRecorder satisfies the transport's VisitRecorder by staging
// the visit in the outbox instead of applying counters inline. The outbox
// worker publishes it and the consumer replays it through the pipeline.
type OutboxVisitRecorder struct {
	outbox *VisitOutboxRepository
}

func NewOutboxVisitRecorder(outbox *VisitOutboxRepository) (*OutboxVisitRecorder, error) {
	if outbox == nil {
		return nil, errors.New("outbox repository is nil")
	}
	return &OutboxVisitRecorder{outbox: outbox}, nil
}

func (r *OutboxVisitRecorder) Record(ctx context.Context, key string, visit analytics.Visit) error {
	return r.outbox.EnqueueVisit(ctx, key, visit.IP, visit.Referer, visit.At)
}
