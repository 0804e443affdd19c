package sharing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.GET("/share-requests/incoming", h.ListIncoming)
	readGroup.GET("/share-requests/outgoing", h.ListOutgoing)
	readGroup.GET("/share-requests/:id", h.GetRequest)
	readGroup.GET("/share-grants", h.ListGrants)

	requestGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	requestGroup.POST("/share-requests", h.CreateRequest)

	// Review actions are restricted to the reviewing organization's admins.
	reviewGroup := api.Group("", auth.RequireRole("admin"))
	reviewGroup.GET("/share-requests/:id/candidates", h.ListCandidates)
	reviewGroup.POST("/share-requests/:id/confirm", h.ConfirmShare)
	reviewGroup.POST("/share-requests/:id/reject", h.RejectRequest)
}

// httpError maps workflow errors onto HTTP status codes. The message stays
// close to the internal error; clients show their own generic copy.
func httpError(err error) *echo.HTTPError {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrEmptySelection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func callerID(c echo.Context) (uuid.UUID, error) {
	raw := auth.UserIDFromContext(c.Request().Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "caller has no user id")
	}
	return id, nil
}

// callerOrg identifies the caller's organization. Review operations use it
// to check the caller against the organization a request was addressed to.
func callerOrg(c echo.Context) (uuid.UUID, error) {
	raw := auth.OrgIDFromContext(c.Request().Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "caller has no organization")
	}
	return id, nil
}

func (h *Handler) CreateRequest(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var in CreateRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.RequestedBy = uid

	sr, err := h.svc.CreateRequest(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sr)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sr, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sr)
}

func orgIDParam(c echo.Context) (uuid.UUID, error) {
	raw := c.QueryParam("organization_id")
	if raw == "" {
		raw = auth.OrgIDFromContext(c.Request().Context())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "organization_id is required")
	}
	return id, nil
}

func (h *Handler) ListIncoming(c echo.Context) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListIncoming(c.Request().Context(), orgID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListOutgoing(c echo.Context) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOutgoing(c.Request().Context(), orgID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListCandidates(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	org, err := callerOrg(c)
	if err != nil {
		return err
	}
	set, err := h.svc.RequestCandidates(c.Request().Context(), id, org)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, set)
}

type confirmShareRequest struct {
	VisitIDs     []uuid.UUID `json:"visit_ids"`
	LabResultIDs []uuid.UUID `json:"lab_result_ids"`
}

func (h *Handler) ConfirmShare(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	org, err := callerOrg(c)
	if err != nil {
		return err
	}
	var req confirmShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	grant, err := h.svc.ConfirmShare(c.Request().Context(), id, req.VisitIDs, req.LabResultIDs, uid, org)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, grant)
}

func (h *Handler) RejectRequest(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	org, err := callerOrg(c)
	if err != nil {
		return err
	}
	if err := h.svc.Resolve(c.Request().Context(), id, StatusRejected, nil, uid, org); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListGrants(c echo.Context) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return err
	}
	var patientID uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListGrants(c.Request().Context(), orgID, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
