package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/loyalty-gateway/internal/kafka"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

type chanSource struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
	failOnce  bool
}

func (s *chanSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if s.failOnce {
		s.failOnce = false
		s.mu.Unlock()
		return kafka.Message{}, errors.New("broker gone")
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-s.in:
		return m, nil
	}
}

func (s *chanSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, m.Offset)
	return nil
}

func (s *chanSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type recordingHub struct {
	mu  sync.Mutex
	got []model.CustomerBalance
}

func (h *recordingHub) Broadcast(code string, points int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, model.CustomerBalance{Code: code, Points: points})
	return true
}

func (h *recordingHub) seen() []model.CustomerBalance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.CustomerBalance(nil), h.got...)
}

func event(t *testing.T, offset int64, code string, points int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.PointsEvent{ID: "01HX", CustomerCode: code, Points: points})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestRelayBroadcastsInOrderAndCommits(t *testing.T) {
	src := &chanSource{in: make(chan kafka.Message, 4), failOnce: true}
	hub := &recordingHub{}
	relay := NewPointsRelay(src, hub)
	relay.Backoff = time.Millisecond

	src.in <- event(t, 1, "000001", 10)
	src.in <- kafka.Message{Offset: 2, Value: []byte("garbage")}
	src.in <- event(t, 3, "000001", 25)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, src.commits())
	assert.Equal(t, []model.CustomerBalance{
		{Code: "000001", Points: 10},
		{Code: "000001", Points: 25},
	}, hub.seen())
}
