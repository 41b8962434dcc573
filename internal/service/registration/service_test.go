package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

type seqCodes struct{ n int }

func (s *seqCodes) NextCode(context.Context) string {
	s.n++
	return fmt.Sprintf("%06d", s.n)
}

type fakeBackend struct {
	got []model.NewCustomer
	err error
}

func (f *fakeBackend) CreateCustomer(_ context.Context, nc model.NewCustomer) (model.Customer, error) {
	if f.err != nil {
		return model.Customer{}, f.err
	}
	f.got = append(f.got, nc)
	return model.Customer{ID: "lv-1", Code: nc.Code, Name: nc.Name, Email: nc.Email, Phone: nc.Phone}, nil
}

type fakePasses struct {
	created []model.CustomerBalance
	err     error
}

func (f *fakePasses) CreateObject(_ context.Context, cb model.CustomerBalance) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.created = append(f.created, cb)
	return true, nil
}

func (f *fakePasses) SaveURL(code string) (string, error) {
	return "https://pay.google.com/gp/v/save/jwt-" + code, nil
}

type fakeTracker map[string]int64

func (f fakeTracker) Track(code string, points int64) { f[code] = points }

func newTestService() (*Service, *fakeBackend, *fakePasses, fakeTracker) {
	b, p, tr := &fakeBackend{}, &fakePasses{}, fakeTracker{}
	return NewService(&seqCodes{}, b, p, tr), b, p, tr
}

func TestRegister(t *testing.T) {
	svc, backend, passes, tracker := newTestService()

	res, err := svc.Register(context.Background(), Request{
		Name:             "  Ana López ",
		Email:            "Ana@Example.com",
		Phone:            "311-123-4567",
		IsQRRegistration: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "000001", res.Customer.Code)
	require.Len(t, backend.got, 1)
	assert.Equal(t, model.NewCustomer{
		Code:  "000001",
		Name:  "Ana López",
		Email: "ana@example.com",
		Phone: "3111234567",
		Note:  "Registro desde QR",
	}, backend.got[0])

	require.Len(t, passes.created, 1)
	assert.Equal(t, int64(0), passes.created[0].Points)
	assert.Equal(t, "https://pay.google.com/gp/v/save/jwt-000001", res.WalletURL)
	assert.Empty(t, res.WalletError)
	assert.True(t, strings.HasPrefix(res.QRCode, "data:image/png;base64,"))

	p, ok := tracker["000001"]
	assert.True(t, ok)
	assert.Equal(t, int64(0), p)
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing name", Request{Email: "a@b.co", Phone: "3111234567"}, "name"},
		{"missing email", Request{Name: "A", Phone: "3111234567"}, "email"},
		{"bad email", Request{Name: "A", Email: "a@b", Phone: "3111234567"}, "email"},
		{"short phone", Request{Name: "A", Email: "a@b.co", Phone: "12345"}, "phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, backend, passes, _ := newTestService()
			_, err := svc.Register(context.Background(), tc.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Empty(t, backend.got)
			assert.Empty(t, passes.created)
		})
	}
}

func TestRegisterBackendFailure(t *testing.T) {
	svc, backend, passes, tracker := newTestService()
	backend.err = errors.New("loyverse 500")

	_, err := svc.Register(context.Background(), Request{Name: "A", Email: "a@b.co", Phone: "3111234567"})
	assert.ErrorIs(t, err, ErrBackend)
	assert.Empty(t, passes.created)
	assert.Empty(t, tracker)
}

func TestRegisterWalletFailureStillSucceeds(t *testing.T) {
	svc, _, passes, tracker := newTestService()
	passes.err = errors.New("google 503")

	res, err := svc.Register(context.Background(), Request{Name: "A", Email: "a@b.co", Phone: "3111234567"})
	require.NoError(t, err)
	assert.Equal(t, "000001", res.Customer.Code)
	assert.Empty(t, res.WalletURL)
	assert.NotEmpty(t, res.WalletError)
	// untracked so the poller creates the pass on its next cycle
	assert.Empty(t, tracker)
}
