// Package loyverse is a thin client for the Loyverse POS customer API.
package loyverse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/loyalty-gateway/internal/breaker"
)

var ErrNotFound = errors.New("loyverse: not found")

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("loyverse %s %s: status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	PageLimit  int
	HTTPClient *http.Client
	Breaker    *breaker.MicroBreaker
}

type Client struct {
	baseURL   string
	token     string
	pageLimit int
	client    *http.Client
	br        *breaker.MicroBreaker

	// ids maps customer codes to Loyverse ids as they are seen.
	idMu sync.RWMutex
	ids  map[string]string
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PageLimit <= 0 || opts.PageLimit > 250 {
		opts.PageLimit = 250
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Breaker == nil {
		opts.Breaker = breaker.New(5, 30*time.Second)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		pageLimit: opts.PageLimit,
		client:    opts.HTTPClient,
		br:        opts.Breaker,
		ids:       make(map[string]string),
	}
}

func (c *Client) remember(code, id string) {
	if code == "" || id == "" {
		return
	}
	c.idMu.Lock()
	c.ids[code] = id
	c.idMu.Unlock()
}

func (c *Client) forget(code string) {
	c.idMu.Lock()
	delete(c.ids, code)
	c.idMu.Unlock()
}

func (c *Client) idOf(code string) (string, bool) {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	id, ok := c.ids[code]
	return id, ok
}

// countable reports whether err says something about upstream health.
// 4xx answers come from a healthy API and must not trip the breaker.
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
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
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
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}, countable)
}

// CheckConnection lists stores; used once at startup to surface bad tokens early.
func (c *Client) CheckConnection(ctx context.Context) (int, error) {
	var res struct {
		Stores []json.RawMessage `json:"stores"`
	}
	if err := c.do(ctx, http.MethodGet, "/stores", nil, &res); err != nil {
		return 0, err
	}
	return len(res.Stores), nil
}

func pageQuery(limit int, cursor string) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return "?" + q.Encode()
}
