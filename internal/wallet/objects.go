package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

type loyaltyObject struct {
	ID            string         `json:"id"`
	ClassID       string         `json:"classId"`
	State         string         `json:"state"`
	AccountID     string         `json:"accountId,omitempty"`
	AccountName   string         `json:"accountName,omitempty"`
	Barcode       *barcode       `json:"barcode,omitempty"`
	LoyaltyPoints *loyaltyPoints `json:"loyaltyPoints,omitempty"`
	Messages      []message      `json:"messages,omitempty"`
}

type barcode struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	AlternateText string `json:"alternateText,omitempty"`
}

type loyaltyPoints struct {
	Label   string        `json:"label,omitempty"`
	Balance pointsBalance `json:"balance"`
}

type pointsBalance struct {
	String string `json:"string"`
}

type pointsPatch struct {
	LoyaltyPoints *loyaltyPoints `json:"loyaltyPoints"`
}

type message struct {
	Header string `json:"header"`
	Body   string `json:"body"`
}

func (c *Client) points(balance int64) *loyaltyPoints {
	return &loyaltyPoints{
		Label:   c.content.PointsLabel,
		Balance: pointsBalance{String: strconv.FormatInt(balance, 10)},
	}
}

func (c *Client) newObject(cb model.CustomerBalance) loyaltyObject {
	name := cb.Name
	if name == "" {
		name = cb.Code
	}
	accountID := cb.Email
	if accountID == "" {
		accountID = cb.Code
	}
	obj := loyaltyObject{
		ID:            c.ObjectID(cb.Code),
		ClassID:       c.classID,
		State:         "ACTIVE",
		AccountID:     accountID,
		AccountName:   name,
		Barcode:       &barcode{Type: "QR_CODE", Value: cb.Code, AlternateText: cb.Code},
		LoyaltyPoints: c.points(cb.Points),
	}
	if c.content.WelcomeHeader != "" || c.content.WelcomeBody != "" {
		obj.Messages = []message{{Header: c.content.WelcomeHeader, Body: c.content.WelcomeBody}}
	}
	return obj
}

// CreateObject creates the pass for a customer with the given starting balance.
// An existing object is not an error; created reports whether this call made it.
func (c *Client) CreateObject(ctx context.Context, cb model.CustomerBalance) (created bool, err error) {
	if cb.Code == "" {
		return false, errors.New("wallet: empty customer code")
	}
	err = c.do(ctx, http.MethodPost, "/loyaltyObject", c.newObject(cb), nil)
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create loyalty object %s: %w", cb.Code, err)
	}
	return true, nil
}

// Reconcile sets the displayed balance of the customer's pass, creating the pass
// when it does not exist yet. It makes a single attempt.
func (c *Client) Reconcile(ctx context.Context, cb model.CustomerBalance) error {
	if cb.Code == "" {
		return errors.New("wallet: empty customer code")
	}
	path := "/loyaltyObject/" + url.PathEscape(c.ObjectID(cb.Code))
	err := c.do(ctx, http.MethodPatch, path, pointsPatch{LoyaltyPoints: c.points(cb.Points)}, nil)
	if err == nil {
		metrics.WalletReconciles.WithLabelValues("updated").Inc()
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		metrics.WalletReconciles.WithLabelValues("failed").Inc()
		return fmt.Errorf("patch loyalty object %s: %w", cb.Code, err)
	}

	if _, err := c.CreateObject(ctx, cb); err != nil {
		metrics.WalletReconciles.WithLabelValues("failed").Inc()
		return err
	}
	metrics.WalletReconciles.WithLabelValues("created").Inc()
	return nil
}
