package wallet

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const issuerScope = "https://www.googleapis.com/auth/wallet_object.issuer"

var ErrNoCredentials = errors.New("wallet: no service account credentials configured")

// Credentials is a parsed Google service-account key.
type Credentials struct {
	ClientEmail string
	PrivateKey  *rsa.PrivateKey
	raw         []byte
}

// LoadCredentials prefers inline JSON over a key file.
func LoadCredentials(file, inline string) (*Credentials, error) {
	var raw []byte
	switch {
	case inline != "":
		raw = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		raw = b
	default:
		return nil, ErrNoCredentials
	}
	return ParseCredentials(raw)
}

func ParseCredentials(raw []byte) (*Credentials, error) {
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, errors.New("parse credentials: client_email and private_key are required")
	}
	pk, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Credentials{ClientEmail: key.ClientEmail, PrivateKey: pk, raw: raw}, nil
}

// HTTPClient returns a client that attaches issuer-scoped OAuth2 access tokens.
func (c *Credentials) HTTPClient(ctx context.Context, timeout time.Duration) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(c.raw, issuerScope)
	if err != nil {
		return nil, fmt.Errorf("oauth2 config: %w", err)
	}
	hc := oauth2.NewClient(ctx, conf.TokenSource(ctx))
	hc.Timeout = timeout
	return hc, nil
}
