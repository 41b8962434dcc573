package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

type CustomerFinder interface {
	FindByCode(ctx context.Context, code string) (model.Customer, error)
}

func customerHandler(finder CustomerFinder) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := strings.TrimSpace(c.Param("code"))
		if code == "" {
			return fail(c, http.StatusBadRequest, "Se requiere el código de cliente")
		}

		cu, err := finder.FindByCode(c.Request().Context(), code)
		if err != nil {
			if errors.Is(err, model.ErrCustomerNotFound) {
				return fail(c, http.StatusNotFound, "Cliente no encontrado")
			}
			log.Errorf("customer lookup %s failed: %v", code, err)
			return fail(c, http.StatusBadGateway, "Error al consultar cliente")
		}

		level := model.LevelFor(cu.Points)
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"customer": customerView{
				Code:   cu.Code,
				Name:   cu.Name,
				Email:  cu.Email,
				Phone:  cu.Phone,
				Points: cu.Points,
				Level:  &level,
			},
		})
	}
}
