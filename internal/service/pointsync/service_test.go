package pointsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	balances map[string]int64
	err      error
	calls    int
	finds    int
}

func (f *fakeSource) set(code string, points int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[code] = points
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

func (f *fakeSource) ListBalances(context.Context) ([]model.CustomerBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.CustomerBalance, 0, len(f.balances))
	for code, p := range f.balances {
		out = append(out, model.CustomerBalance{Code: code, Points: p})
	}
	return out, nil
}

func (f *fakeSource) FindByCode(_ context.Context, code string) (model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	p, ok := f.balances[code]
	if !ok {
		return model.Customer{}, model.ErrCustomerNotFound
	}
	return model.Customer{Code: code, Points: p}, nil
}

type fakeWallet struct {
	mu      sync.Mutex
	pushed  []model.CustomerBalance
	failFor map[string]bool
}

func (f *fakeWallet) Reconcile(_ context.Context, cb model.CustomerBalance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[cb.Code] {
		return errors.New("wallet down")
	}
	f.pushed = append(f.pushed, cb)
	return nil
}

func (f *fakeWallet) pushes(code string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, cb := range f.pushed {
		if cb.Code == code {
			out = append(out, cb.Points)
		}
	}
	return out
}

func (f *fakeWallet) setFail(code string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[code] = fail
}

type update struct {
	code   string
	points int64
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []update
}

func (f *fakeNotifier) NotifyPoints(_ context.Context, code string, points int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, update{code, points})
	return nil
}

func (f *fakeNotifier) updates() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.sent...)
}

func newTestService(t *testing.T) (*Service, *fakeSource, *fakeWallet, *fakeNotifier, *clockwork.FakeClock) {
	t.Helper()
	src := &fakeSource{balances: map[string]int64{}}
	w := &fakeWallet{failFor: map[string]bool{}}
	n := &fakeNotifier{}
	clock := clockwork.NewFakeClock()
	svc := NewService(src, w, n, Options{Interval: 30 * time.Second, Workers: 4, Clock: clock, CachedLookups: true})
	return svc, src, w, n, clock
}

func TestRegisteredCustomerEarnsPoints(t *testing.T) {
	svc, src, w, n, _ := newTestService(t)
	ctx := context.Background()

	src.set("000001", 0)
	svc.Track("000001", 0)

	rep, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Changed)
	assert.Empty(t, n.updates())

	src.set("000001", 50)
	rep, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changed)
	assert.Equal(t, []int64{50}, w.pushes("000001"))
	assert.Equal(t, []update{{"000001", 50}}, n.updates())

	p, ok := svc.Known("000001")
	require.True(t, ok)
	assert.Equal(t, int64(50), p)
}

func TestUnchangedBalanceIsNotPushedAgain(t *testing.T) {
	svc, src, w, n, _ := newTestService(t)
	ctx := context.Background()

	src.set("000002", 10)
	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{10}, w.pushes("000002"))
	assert.Len(t, n.updates(), 1)
}

func TestFetchFailureLeavesStateAlone(t *testing.T) {
	svc, src, w, n, _ := newTestService(t)
	ctx := context.Background()

	svc.Track("000001", 5)
	src.set("000001", 9)
	src.fail(errors.New("loyverse 503"))

	_, err := svc.RunOnce(ctx)
	require.Error(t, err)
	assert.Empty(t, w.pushes("000001"))
	assert.Empty(t, n.updates())
	p, _ := svc.Known("000001")
	assert.Equal(t, int64(5), p)

	src.fail(nil)
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, w.pushes("000001"))
}

func TestPerCustomerFailureIsIsolatedAndRetried(t *testing.T) {
	svc, src, w, n, _ := newTestService(t)
	ctx := context.Background()

	src.set("000001", 10)
	src.set("000002", 20)
	w.setFail("000001", true)

	rep, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Changed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []int64{20}, w.pushes("000002"))
	// clients still hear about the balance even though the pass lagged
	assert.Len(t, n.updates(), 2)

	_, known := svc.Known("000001")
	assert.False(t, known)

	w.setFail("000001", false)
	rep, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changed)
	assert.Equal(t, []int64{10}, w.pushes("000001"))
}

func TestApplyPushesUnconditionally(t *testing.T) {
	svc, _, w, n, _ := newTestService(t)
	ctx := context.Background()

	svc.Track("000003", 40)
	require.NoError(t, svc.Apply(ctx, "000003", 40))
	require.NoError(t, svc.Apply(ctx, "000003", 45))

	assert.Equal(t, []int64{40, 45}, w.pushes("000003"))
	assert.Equal(t, []update{{"000003", 40}, {"000003", 45}}, n.updates())
}

func TestApplyReportsWalletFailure(t *testing.T) {
	svc, _, w, n, _ := newTestService(t)
	w.setFail("000004", true)

	err := svc.Apply(context.Background(), "000004", 12)
	require.Error(t, err)
	assert.Len(t, n.updates(), 1)
}

func TestLookup(t *testing.T) {
	svc, src, _, _, _ := newTestService(t)
	src.set("000005", 77)

	p, err := svc.Lookup(context.Background(), "000005")
	require.NoError(t, err)
	assert.Equal(t, int64(77), p)

	_, err = svc.Lookup(context.Background(), "999999")
	assert.ErrorIs(t, err, model.ErrCustomerNotFound)
	assert.Equal(t, 2, src.findCount())
}

func TestLookupAnswersTrackedCodesWithoutBackend(t *testing.T) {
	svc, src, _, _, _ := newTestService(t)
	ctx := context.Background()

	src.set("000006", 10)
	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	svc.Track("000007", 0)

	p, err := svc.Lookup(ctx, "000006")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p)

	p, err = svc.Lookup(ctx, "000007")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p)

	assert.Zero(t, src.findCount())
}

func TestLookupWithoutCacheAlwaysAsksBackend(t *testing.T) {
	src := &fakeSource{balances: map[string]int64{"000009": 40}}
	svc := NewService(src, &fakeWallet{failFor: map[string]bool{}}, &fakeNotifier{}, Options{Clock: clockwork.NewFakeClock()})

	// another process owns the poller, so the tracked value may be stale
	svc.Track("000009", 15)
	p, err := svc.Lookup(context.Background(), "000009")
	require.NoError(t, err)
	assert.Equal(t, int64(40), p)
	assert.Equal(t, 1, src.findCount())
}

func TestKnownFollowsLastAcceptedPush(t *testing.T) {
	svc, _, w, _, _ := newTestService(t)
	ctx := context.Background()

	svc.Track("000008", 5)
	require.NoError(t, svc.Apply(ctx, "000008", 12))
	p, ok := svc.Known("000008")
	require.True(t, ok)
	assert.Equal(t, int64(12), p)

	w.setFail("000008", true)
	require.Error(t, svc.Apply(ctx, "000008", 30))
	p, _ = svc.Known("000008")
	assert.Equal(t, int64(12), p)
}

func TestStartPollsImmediatelyThenOnEveryTick(t *testing.T) {
	svc, src, _, _, clock := newTestService(t)
	src.fail(errors.New("down"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()
	assert.ErrorIs(t, svc.Start(ctx), ErrRunning)

	require.Eventually(t, func() bool { return src.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// a failed cycle does not stop the loop
	src.fail(nil)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return src.callCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return src.callCount() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	require.NoError(t, svc.Start(context.Background()))
	svc.Stop()
	svc.Stop()
	require.NoError(t, svc.Start(context.Background()))
	svc.Stop()
}
