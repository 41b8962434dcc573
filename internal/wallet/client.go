// Package wallet talks to the Google Wallet objects API for loyalty passes.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/loyalty-gateway/internal/breaker"
)

var (
	ErrNotFound = errors.New("wallet: object not found")
	ErrConflict = errors.New("wallet: already exists")
)

type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wallet %s %s: status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// PassContent is the static text put on every new pass.
type PassContent struct {
	PointsLabel   string
	WelcomeHeader string
	WelcomeBody   string
}

type Options struct {
	BaseURL     string
	SaveURLBase string
	IssuerID    string
	ClassID     string
	Origins     []string
	Content     PassContent
	HTTPClient  *http.Client
	Credentials *Credentials
	Breaker     *breaker.MicroBreaker
}

type Client struct {
	baseURL     string
	saveURLBase string
	issuerID    string
	classID     string
	origins     []string
	content     PassContent
	client      *http.Client
	creds       *Credentials
	br          *breaker.MicroBreaker
	now         func() time.Time
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Breaker == nil {
		opts.Breaker = breaker.New(5, 30*time.Second)
	}
	if opts.SaveURLBase == "" {
		opts.SaveURLBase = "https://pay.google.com/gp/v/save/"
	}
	if opts.Content.PointsLabel == "" {
		opts.Content.PointsLabel = "Points"
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		saveURLBase: opts.SaveURLBase,
		issuerID:    opts.IssuerID,
		classID:     opts.ClassID,
		origins:     opts.Origins,
		content:     opts.Content,
		client:      opts.HTTPClient,
		creds:       opts.Credentials,
		br:          opts.Breaker,
		now:         time.Now,
	}
}

// ObjectID is the wallet object id for a customer code.
func (c *Client) ObjectID(code string) string {
	return c.issuerID + ".user-" + code
}

func countable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.br.Do(func() error {
		var body io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			body = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
			return &StatusError{Method: method, Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, res.Body)
			return nil
		}
		return json.NewDecoder(res.Body).Decode(out)
	}, countable)
}
