package grants

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Handler provides HTTP handlers for issuing, listing and revoking grants.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Issuing and revoking are patient actions; the service re-checks the
	// role, the route guard just fails fast.
	api.POST("/grants", h.IssueGrant, auth.RequireRole(identity.RolePatient))
	api.GET("/grants", h.ListGrants)
	api.DELETE("/grants/:clinicianId", h.RevokeGrant, auth.RequireRole(identity.RolePatient))
}

// grantView decorates a grant with its human-readable remaining time.
type grantView struct {
	*AccessGrant
	Remaining string `json:"remaining"`
}

func (h *Handler) views(grants []*AccessGrant, now time.Time) []grantView {
	out := make([]grantView, 0, len(grants))
	for _, g := range grants {
		remaining := "revoked"
		if g.Active {
			remaining = RemainingLabel(g.ExpiresAt, now)
		}
		out = append(out, grantView{AccessGrant: g, Remaining: remaining})
	}
	return out
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id := auth.IdentityFromContext(c.Request().Context())
	uid, err := uuid.Parse(id.EffectiveID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	return uid, nil
}

func (h *Handler) IssueGrant(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var req struct {
		ClinicianID   string `json:"clinician_id"`
		DurationHours int    `json:"duration_hours"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clinicianID, err := uuid.Parse(req.ClinicianID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinician id")
	}
	g, err := h.svc.Issue(c.Request().Context(), caller, clinicianID, time.Duration(req.DurationHours)*time.Hour)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, grantView{AccessGrant: g, Remaining: RemainingLabel(g.ExpiresAt, h.svc.Now())})
}

// ListGrants returns the caller's grants: the patient side by default, the
// clinician side when ?side=clinician.
func (h *Handler) ListGrants(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var grants []*AccessGrant
	if c.QueryParam("side") == "clinician" {
		grants, err = h.svc.ListForClinician(c.Request().Context(), caller)
	} else {
		grants, err = h.svc.ListForPatient(c.Request().Context(), caller)
	}
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, h.views(grants, h.svc.Now()))
}

func (h *Handler) RevokeGrant(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	clinicianID, err := uuid.Parse(c.Param("clinicianId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinician id")
	}
	if err := h.svc.Revoke(c.Request().Context(), caller, clinicianID); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
