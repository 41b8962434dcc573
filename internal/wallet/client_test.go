package wallet

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGoogle keeps loyalty objects in memory and answers like the objects API.
type fakeGoogle struct {
	mu      sync.Mutex
	objects map[string]map[string]any
	classes map[string]bool
	calls   int
	fail    int // status forced for every call when non-zero
}

func newFakeGoogle() *fakeGoogle {
	return &fakeGoogle{objects: map[string]map[string]any{}, classes: map[string]bool{}}
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != 0 {
		w.WriteHeader(f.fail)
		return
	}

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/loyaltyObject":
		id := body["id"].(string)
		if _, ok := f.objects[id]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.objects[id] = body
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/loyaltyObject/"):
		id, _ := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/loyaltyObject/"))
		obj, ok := f.objects[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for k, v := range body {
			obj[k] = v
		}
	case r.Method == http.MethodPost && r.URL.Path == "/loyaltyClass":
		id := body["id"].(string)
		if f.classes[id] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.classes[id] = true
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeGoogle) balance(t *testing.T, id string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[id]
	require.True(t, ok, "object %s missing", id)
	lp := obj["loyaltyPoints"].(map[string]any)
	return lp["balance"].(map[string]any)["string"].(string)
}

func (f *fakeGoogle) object(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[id]
}

func (f *fakeGoogle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWallet(t *testing.T, creds *Credentials) (*Client, *fakeGoogle) {
	t.Helper()
	fake := newFakeGoogle()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:     srv.URL,
		IssuerID:    "3388",
		ClassID:     "3388.loyalty_card",
		Credentials: creds,
		Content:     PassContent{PointsLabel: "Puntos", WelcomeHeader: "Hola", WelcomeBody: "Bienvenido"},
	}), fake
}

func TestCreateObjectStartsAtZero(t *testing.T) {
	c, fake := newTestWallet(t, nil)
	ctx := context.Background()

	created, err := c.CreateObject(ctx, model.CustomerBalance{Code: "000001", Name: "Ash", Email: "ash@pallet.town"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "0", fake.balance(t, "3388.user-000001"))

	obj := fake.object("3388.user-000001")
	assert.Equal(t, "3388.loyalty_card", obj["classId"])
	assert.Equal(t, "ash@pallet.town", obj["accountId"])
	assert.Equal(t, "000001", obj["barcode"].(map[string]any)["value"])

	created, err = c.CreateObject(ctx, model.CustomerBalance{Code: "000001"})
	require.NoError(t, err)
	assert.False(t, created, "existing object is not an error")
}

func TestReconcileIsIdempotent(t *testing.T) {
	c, fake := newTestWallet(t, nil)
	ctx := context.Background()
	_, err := c.CreateObject(ctx, model.CustomerBalance{Code: "000001"})
	require.NoError(t, err)

	require.NoError(t, c.Reconcile(ctx, model.CustomerBalance{Code: "000001", Points: 50}))
	assert.Equal(t, "50", fake.balance(t, "3388.user-000001"))

	require.NoError(t, c.Reconcile(ctx, model.CustomerBalance{Code: "000001", Points: 50}))
	assert.Equal(t, "50", fake.balance(t, "3388.user-000001"))
	assert.Equal(t, "3388.loyalty_card", fake.object("3388.user-000001")["classId"], "patch keeps other fields")
}

func TestReconcileCreatesMissingObject(t *testing.T) {
	c, fake := newTestWallet(t, nil)

	require.NoError(t, c.Reconcile(context.Background(), model.CustomerBalance{Code: "000007", Points: 12}))
	assert.Equal(t, "12", fake.balance(t, "3388.user-000007"))
	assert.Equal(t, "000007", fake.object("3388.user-000007")["accountName"])
}

func TestReconcileSurfacesOtherFailuresWithoutRetry(t *testing.T) {
	c, fake := newTestWallet(t, nil)
	fake.mu.Lock()
	fake.fail = http.StatusInternalServerError
	fake.mu.Unlock()

	err := c.Reconcile(context.Background(), model.CustomerBalance{Code: "000001", Points: 5})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, 1, fake.callCount())
}

func TestEnsureClass(t *testing.T) {
	c, _ := newTestWallet(t, nil)
	ctx := context.Background()
	p := Program{IssuerName: "Mamitas Tepic", Name: "Lealtad", LogoURI: "https://example.com/logo.png"}

	created, err := c.EnsureClass(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.EnsureClass(ctx, p)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = c.EnsureClass(ctx, Program{})
	assert.Error(t, err)
}

func testCredentials(t *testing.T) *Credentials {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	raw, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "wallet@project.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
	})
	require.NoError(t, err)

	creds, err := ParseCredentials(raw)
	require.NoError(t, err)
	return creds
}

func TestSaveURL(t *testing.T) {
	creds := testCredentials(t)
	c, _ := newTestWallet(t, creds)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	link, err := c.SaveURL("000001")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "https://pay.google.com/gp/v/save/"))

	token := strings.TrimPrefix(link, "https://pay.google.com/gp/v/save/")
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return &creds.PrivateKey.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience("google"))
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "savetowallet", claims["typ"])
	assert.Equal(t, "wallet@project.iam.gserviceaccount.com", claims["iss"])
	objs := claims["payload"].(map[string]any)["loyaltyObjects"].([]any)
	assert.Equal(t, "3388.user-000001", objs[0].(map[string]any)["id"])
}

func TestSaveURLWithoutCredentials(t *testing.T) {
	c, _ := newTestWallet(t, nil)
	_, err := c.SaveURL("000001")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoadCredentials(t *testing.T) {
	_, err := LoadCredentials("", "")
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = ParseCredentials([]byte(`{"client_email":"x"}`))
	assert.Error(t, err)
}
