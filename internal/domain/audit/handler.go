package audit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	trail *Trail
}

func NewHandler(trail *Trail) *Handler {
	return &Handler{trail: trail}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin"))
	g.GET("/audit-entries", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)

	var filter SearchFilter
	if raw := c.QueryParam("actor_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid actor_user_id")
		}
		filter.ActorUserID = id
	}
	if raw := c.QueryParam("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid resource_id")
		}
		filter.ResourceID = id
	}
	filter.Action = c.QueryParam("action")
	filter.ResourceType = c.QueryParam("resource_type")

	items, total, err := h.trail.Search(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
