package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

// enricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to the enrichment process without touching business logic.
type enricherMiddleware struct {
	next   Enricher
	logger *slog.Logger
}

func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &enricherMiddleware{next: next, logger: logger}
}

func (m *enricherMiddleware) ResolvePeer(ctx context.Context, id model.UserID) (model.Peer, error) {
	start := time.Now()

	res, err := m.next.ResolvePeer(ctx, id)
	if err != nil {
		m.logger.Debug("SINGLE_PEER_ENRICHMENT_FAILED",
			"peer_id", id,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return res, err
}

func (m *enricherMiddleware) ResolvePeers(ctx context.Context, from, to model.UserID) (model.Peer, model.Peer, error) {
	start := time.Now()

	f, t, err := m.next.ResolvePeers(ctx, from, to)

	// [OBSERVABILITY] Scoped logging for performance auditing
	duration := time.Since(start)
	if err != nil {
		m.logger.Warn("PEER_ENRICHMENT_BATCH_FAILED",
			"err", err,
			"from_id", from,
			"to_id", to,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.logger.Debug("PEER_ENRICHMENT_BATCH_COMPLETED", "duration_ms", duration.Milliseconds())
	}
	return f, t, err
}

func (m *enricherMiddleware) Populate(ctx context.Context, msg *model.Message) (*model.Message, error) {
	start := time.Now()

	res, err := m.next.Populate(ctx, msg)
	if err != nil {
		m.logger.Warn("MESSAGE_POPULATE_FAILED",
			"err", err,
			"message_id", msg.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return res, err
}
