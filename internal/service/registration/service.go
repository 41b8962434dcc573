package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
	"github.com/jmehdipour/loyalty-gateway/internal/util"
)

const (
	noteQR  = "Registro desde QR"
	noteWeb = "Registro web"

	walletFailureMessage = "No se pudo crear la tarjeta de Google Wallet. Por favor intente más tarde."
)

// ErrBackend wraps any failure of the loyalty backend during registration.
var ErrBackend = errors.New("loyalty backend unavailable")

// ValidationError is returned before any external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type Allocator interface {
	NextCode(ctx context.Context) string
}

type CustomerCreator interface {
	CreateCustomer(ctx context.Context, nc model.NewCustomer) (model.Customer, error)
}

// PassIssuer mints the wallet pass for a new customer.
type PassIssuer interface {
	CreateObject(ctx context.Context, cb model.CustomerBalance) (bool, error)
	SaveURL(code string) (string, error)
}

// Tracker is told about the balance the new pass starts with.
type Tracker interface {
	Track(code string, points int64)
}

type Request struct {
	Name             string
	Email            string
	Phone            string
	IsQRRegistration bool
}

type Result struct {
	Customer    model.Customer
	QRCode      string
	WalletURL   string
	WalletError string
}

type Service struct {
	codes   Allocator
	backend CustomerCreator
	wallet  PassIssuer
	tracker Tracker
	log     *zap.Logger
}

func NewService(codes Allocator, backend CustomerCreator, wallet PassIssuer, tracker Tracker) *Service {
	return &Service{
		codes:   codes,
		backend: backend,
		wallet:  wallet,
		tracker: tracker,
		log:     logger.Named("registration"),
	}
}

// Validate normalizes req in place.
func Validate(req *Request) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = util.NormalizeEmail(req.Email)
	req.Phone = util.NormalizePhone(req.Phone)

	switch {
	case req.Name == "":
		return &ValidationError{Field: "name", Message: "Faltan campos requeridos"}
	case req.Email == "":
		return &ValidationError{Field: "email", Message: "Faltan campos requeridos"}
	case req.Phone == "":
		return &ValidationError{Field: "phone", Message: "Faltan campos requeridos"}
	case !util.ValidEmail(req.Email):
		return &ValidationError{Field: "email", Message: "Formato de email inválido"}
	case !util.ValidPhone(req.Phone):
		return &ValidationError{Field: "phone", Message: "El teléfono debe tener 10 dígitos"}
	}
	return nil
}

// Register creates the customer, then the wallet pass. A wallet failure does
// not fail the registration; it is reported in Result.WalletError.
func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	if err := Validate(&req); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	code := s.codes.NextCode(ctx)
	note := noteWeb
	if req.IsQRRegistration {
		note = noteQR
	}

	cust, err := s.backend.CreateCustomer(ctx, model.NewCustomer{
		Code:  code,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Note:  note,
	})
	if err != nil {
		metrics.Registrations.WithLabelValues("backend_failed").Inc()
		s.log.Error("create customer failed", zap.String("code", code), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if cust.Code == "" {
		cust.Code = code
	}

	res := Result{Customer: cust}
	if qr, err := util.QRDataURL(cust.Code); err != nil {
		s.log.Warn("qr generation failed", zap.String("code", cust.Code), zap.Error(err))
	} else {
		res.QRCode = qr
	}

	if url, err := s.issuePass(ctx, cust); err != nil {
		metrics.Registrations.WithLabelValues("wallet_failed").Inc()
		s.log.Warn("wallet pass not issued", zap.String("code", cust.Code), zap.Error(err))
		res.WalletError = walletFailureMessage
	} else {
		res.WalletURL = url
		s.tracker.Track(cust.Code, cust.Points)
		metrics.Registrations.WithLabelValues("ok").Inc()
	}

	s.log.Info("customer registered",
		zap.String("code", cust.Code),
		zap.String("id", cust.ID),
		zap.Bool("qr", req.IsQRRegistration),
		zap.Bool("wallet", res.WalletURL != ""))
	return res, nil
}

func (s *Service) issuePass(ctx context.Context, c model.Customer) (string, error) {
	if _, err := s.wallet.CreateObject(ctx, c.Balance()); err != nil {
		return "", err
	}
	return s.wallet.SaveURL(c.Code)
}
