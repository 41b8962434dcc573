package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
	"github.com/jmehdipour/loyalty-gateway/internal/util"
)

// PointsPublisher turns balance notifications into PointsEvent messages.
type PointsPublisher struct {
	p   *Producer
	now func() time.Time
}

func NewPointsPublisher(p *Producer) *PointsPublisher {
	return &PointsPublisher{p: p, now: time.Now}
}

func (pp *PointsPublisher) NotifyPoints(ctx context.Context, code string, points int64) error {
	ev := model.PointsEvent{
		ID:           util.NewID(),
		CustomerCode: code,
		Points:       points,
		ObservedAt:   pp.now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal points event: %w", err)
	}
	if err := pp.p.Publish(ctx, code, payload); err != nil {
		metrics.RelayedEvents.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("publish points event: %w", err)
	}
	metrics.RelayedEvents.WithLabelValues("published").Inc()
	return nil
}

// DecodePointsEvent parses a relayed payload. Events without a customer code are rejected.
func DecodePointsEvent(b []byte) (model.PointsEvent, error) {
	var ev model.PointsEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return model.PointsEvent{}, err
	}
	if ev.CustomerCode == "" {
		return model.PointsEvent{}, fmt.Errorf("points event %q: missing customer code", ev.ID)
	}
	return ev, nil
}
