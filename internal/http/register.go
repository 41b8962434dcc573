package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/loyalty-gateway/internal/model"
	"github.com/jmehdipour/loyalty-gateway/internal/service/registration"
)

// Registrar is the registration use case.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (registration.Result, error)
}

type registerReq struct {
	Name             string `json:"name"`
	FullName         string `json:"fullName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	IsQRRegistration bool   `json:"isQRRegistration"`
}

type customerView struct {
	Code   string              `json:"code"`
	Name   string              `json:"name"`
	Email  string              `json:"email"`
	Phone  string              `json:"phone"`
	Points int64               `json:"points"`
	Level  *model.LoyaltyLevel `json:"level,omitempty"`
}

type registerResp struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Customer    customerView `json:"customer"`
	QRCode      string       `json:"qrCode,omitempty"`
	WalletURL   string       `json:"walletUrl,omitempty"`
	WalletError string       `json:"walletError,omitempty"`
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"success": false, "message": msg})
}

func registerHandler(svc Registrar) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerReq
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Solicitud inválida")
		}

		name := req.Name
		if strings.TrimSpace(name) == "" {
			name = req.FullName
		}

		res, err := svc.Register(c.Request().Context(), registration.Request{
			Name:             name,
			Email:            req.Email,
			Phone:            req.Phone,
			IsQRRegistration: req.IsQRRegistration,
		})
		if err != nil {
			var verr *registration.ValidationError
			if errors.As(err, &verr) {
				return fail(c, http.StatusBadRequest, verr.Message)
			}
			log.Errorf("register failed: %v", err)
			return fail(c, http.StatusBadGateway, "Error al crear cliente en Loyverse")
		}

		msg := "Usuario registrado exitosamente"
		if res.WalletError != "" {
			msg = "Usuario registrado exitosamente, pero hubo un problema al crear la tarjeta de Google Wallet"
		}
		cu := res.Customer
		return c.JSON(http.StatusCreated, registerResp{
			Success: true,
			Message: msg,
			Customer: customerView{
				Code:   cu.Code,
				Name:   cu.Name,
				Email:  cu.Email,
				Phone:  cu.Phone,
				Points: cu.Points,
			},
			QRCode:      res.QRCode,
			WalletURL:   res.WalletURL,
			WalletError: res.WalletError,
		})
	}
}
