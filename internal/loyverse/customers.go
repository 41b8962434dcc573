package loyverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
	"go.uber.org/zap"
)

// customerDTO is the wire shape of a Loyverse customer.
type customerDTO struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PhoneNumber  string       `json:"phone_number"`
	CustomerCode string       `json:"customer_code"`
	Note         string       `json:"note"`
	TotalPoints  *json.Number `json:"total_points"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type createCustomerReq struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CustomerCode string `json:"customer_code"`
	Note         string `json:"note,omitempty"`
}

type customersPage struct {
	Customers []json.RawMessage `json:"customers"`
	Cursor    string            `json:"cursor"`
}

// toModel validates the boundary shape. Fractional balances are floored: the
// wallet pass and the web client only show whole points.
func (d customerDTO) toModel() (model.Customer, error) {
	if d.ID == "" {
		return model.Customer{}, errors.New("missing id")
	}
	c := model.Customer{
		ID:        d.ID,
		Code:      strings.TrimSpace(d.CustomerCode),
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.PhoneNumber,
		Note:      d.Note,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.TotalPoints == nil {
		return c, nil
	}
	f, err := d.TotalPoints.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return model.Customer{}, fmt.Errorf("total_points %q is not a number", d.TotalPoints.String())
	}
	c.Points = int64(math.Floor(f))
	return c, nil
}

// CreateCustomer registers a new customer carrying our customer code.
func (c *Client) CreateCustomer(ctx context.Context, nc model.NewCustomer) (model.Customer, error) {
	var dto customerDTO
	err := c.do(ctx, http.MethodPost, "/customers", createCustomerReq{
		Name:         nc.Name,
		Email:        nc.Email,
		PhoneNumber:  nc.Phone,
		CustomerCode: nc.Code,
		Note:         nc.Note,
	}, &dto)
	if err != nil {
		return model.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	cu, err := dto.toModel()
	if err != nil {
		return model.Customer{}, fmt.Errorf("create customer: invalid response: %w", err)
	}
	if cu.Code == "" {
		cu.Code = nc.Code
	}
	c.remember(cu.Code, cu.ID)
	return cu, nil
}

// eachCustomer walks every page. Records that fail validation are logged and
// skipped; fn returning false stops the walk.
func (c *Client) eachCustomer(ctx context.Context, fn func(model.Customer) bool) error {
	cursor := ""
	for {
		var page customersPage
		if err := c.do(ctx, http.MethodGet, "/customers"+pageQuery(c.pageLimit, cursor), nil, &page); err != nil {
			return fmt.Errorf("list customers: %w", err)
		}

		for _, raw := range page.Customers {
			var dto customerDTO
			if err := json.Unmarshal(raw, &dto); err != nil {
				logger.Log.Warn("loyverse: skipping undecodable customer", zap.Error(err))
				continue
			}
			cu, err := dto.toModel()
			if err != nil {
				logger.Log.Warn("loyverse: skipping invalid customer",
					zap.String("id", dto.ID),
					zap.String("code", dto.CustomerCode),
					zap.Error(err),
				)
				continue
			}
			c.remember(cu.Code, cu.ID)
			if !fn(cu) {
				return nil
			}
		}

		if page.Cursor == "" || page.Cursor == cursor {
			return nil
		}
		cursor = page.Cursor
	}
}

// ListBalances fetches every customer that carries a customer code.
func (c *Client) ListBalances(ctx context.Context) ([]model.CustomerBalance, error) {
	var out []model.CustomerBalance
	err := c.eachCustomer(ctx, func(cu model.Customer) bool {
		if cu.Code != "" {
			out = append(out, cu.Balance())
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindByCode fetches a customer by code. Codes seen before are read directly
// by id; unknown or stale ones fall back to scanning the customer list.
// Returns model.ErrCustomerNotFound when absent.
func (c *Client) FindByCode(ctx context.Context, code string) (model.Customer, error) {
	if id, ok := c.idOf(code); ok {
		cu, err := c.getCustomer(ctx, id)
		switch {
		case err == nil && cu.Code == code:
			return cu, nil
		case err == nil, errors.Is(err, ErrNotFound):
			c.forget(code)
		default:
			return model.Customer{}, err
		}
	}
	return c.scanForCode(ctx, code)
}

func (c *Client) getCustomer(ctx context.Context, id string) (model.Customer, error) {
	var dto customerDTO
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &dto); err != nil {
		return model.Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	cu, err := dto.toModel()
	if err != nil {
		return model.Customer{}, fmt.Errorf("get customer %s: invalid response: %w", id, err)
	}
	return cu, nil
}

func (c *Client) scanForCode(ctx context.Context, code string) (model.Customer, error) {
	var (
		found model.Customer
		ok    bool
	)
	err := c.eachCustomer(ctx, func(cu model.Customer) bool {
		if cu.Code == code {
			found, ok = cu, true
			return false
		}
		return true
	})
	if err != nil {
		return model.Customer{}, err
	}
	if !ok {
		return model.Customer{}, fmt.Errorf("customer %s: %w", code, model.ErrCustomerNotFound)
	}
	return found, nil
}
