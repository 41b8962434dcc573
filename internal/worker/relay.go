package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/kafka"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
)

// Source is the consumer side of the points topic.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Broadcaster delivers a balance to the locally connected client, if any.
type Broadcaster interface {
	Broadcast(code string, points int64) bool
}

// PointsRelay:
// - fetches PointsEvents published by `worker sync`,
// - hands each one to the local hub,
// - commits after delivery (at-most-once to the browser either way).
type PointsRelay struct {
	Consumer Source
	Hub      Broadcaster

	// Backoff after a failed fetch.
	Backoff time.Duration

	log *zap.Logger
}

func NewPointsRelay(consumer Source, hub Broadcaster) *PointsRelay {
	return &PointsRelay{
		Consumer: consumer,
		Hub:      hub,
		Backoff:  200 * time.Millisecond,
		log:      logger.Named("relay"),
	}
}

// Run blocks until ctx is cancelled. Events are processed in fetch order so
// updates for one customer (one partition) arrive in order.
func (r *PointsRelay) Run(ctx context.Context) error {
	for {
		m, err := r.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.Backoff):
			}
			continue
		}
		r.processOne(ctx, m)
	}
}

func (r *PointsRelay) processOne(ctx context.Context, m kafka.Message) {
	ev, err := kafka.DecodePointsEvent(m.Value)
	if err != nil {
		metrics.RelayedEvents.WithLabelValues("bad_payload").Inc()
		r.log.Warn("bad points event; skipping", zap.Int64("offset", m.Offset), zap.Error(err))
	} else {
		delivered := r.Hub.Broadcast(ev.CustomerCode, ev.Points)
		metrics.RelayedEvents.WithLabelValues("relayed").Inc()
		r.log.Debug("points event relayed",
			zap.String("id", ev.ID),
			zap.String("code", ev.CustomerCode),
			zap.Int64("points", ev.Points),
			zap.Bool("delivered", delivered))
	}

	// poison messages are committed too
	if err := r.Consumer.Commit(ctx, m); err != nil && ctx.Err() == nil {
		r.log.Warn("kafka commit failed", zap.Error(err))
	}
}
