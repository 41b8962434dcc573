package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/loyalty-gateway/internal/util"
)

// generateQRHandler serves the in-store poster QR that opens the registration page.
func generateQRHandler(frontendURL string) echo.HandlerFunc {
	target := strings.TrimRight(frontendURL, "/") + "/register?qr=true"
	return func(c echo.Context) error {
		qr, err := util.QRDataURL(target)
		if err != nil {
			log.Errorf("generate qr: %v", err)
			return fail(c, http.StatusInternalServerError, "Error al generar código QR")
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "qrCode": qr, "url": target})
	}
}
