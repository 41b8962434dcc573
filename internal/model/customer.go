package model

import (
	"errors"
	"time"
)

// Customer is a loyalty member as recorded by the loyalty backend (Loyverse).
type Customer struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Points    int64     `json:"points"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance projects the customer onto the sync loop's boundary type.
func (c Customer) Balance() CustomerBalance {
	return CustomerBalance{Code: c.Code, Points: c.Points, Name: c.Name, Email: c.Email}
}

// CustomerBalance is the validated per-customer result of a balance fetch.
// Code is always non-empty.
type CustomerBalance struct {
	Code   string
	Points int64
	Name   string
	Email  string
}

// WalletPassState mirrors the last balance pushed to the wallet provider.
type WalletPassState struct {
	CustomerCode      string
	LastPushedBalance int64
}

// NewCustomer is the registration input after normalization.
type NewCustomer struct {
	Code  string
	Name  string
	Email string
	Phone string
	Note  string
}

// ErrCustomerNotFound is returned when a customer code is unknown to the loyalty backend.
var ErrCustomerNotFound = errors.New("customer not found")
