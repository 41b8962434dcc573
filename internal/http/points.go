package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// PointsApplier pushes an operator-supplied balance through the sync path.
type PointsApplier interface {
	Apply(ctx context.Context, code string, points int64) error
}

type updatePointsReq struct {
	UserID string `json:"userId"`
	Points *int64 `json:"points"`
}

func updatePointsHandler(svc PointsApplier) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updatePointsReq
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Solicitud inválida")
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" || req.Points == nil {
			return fail(c, http.StatusBadRequest, "Se requiere userId y points")
		}
		if *req.Points < 0 {
			return fail(c, http.StatusBadRequest, "points no puede ser negativo")
		}

		if err := svc.Apply(c.Request().Context(), req.UserID, *req.Points); err != nil {
			log.Errorf("update points %s failed: %v", req.UserID, err)
			return fail(c, http.StatusBadGateway, "Error al actualizar puntos")
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Puntos actualizados correctamente"})
	}
}
