package family

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Handler provides HTTP handlers for families, members, and invitations.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/families", h.CreateFamily)
	api.GET("/families/:id", h.GetFamily)
	api.GET("/families/:id/members", h.ListMembers)
	api.POST("/families/:id/invitations", h.InviteMember)
	api.DELETE("/families/:id/members/:userId", h.KickMember)
	api.POST("/families/:id/leave", h.LeaveFamily)

	api.GET("/invitations", h.ListInvitations)
	api.POST("/invitations/:id/accept", h.AcceptInvitation)
	api.POST("/invitations/:id/decline", h.DeclineInvitation)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id := auth.IdentityFromContext(c.Request().Context())
	uid, err := uuid.Parse(id.EffectiveID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	return uid, nil
}

func (h *Handler) CreateFamily(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.CreateFamily(c.Request().Context(), caller, req.Name)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFamily(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid family id")
	}
	f, err := h.svc.GetFamily(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListMembers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid family id")
	}
	members, err := h.svc.ListMembers(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) InviteMember(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	familyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid family id")
	}
	var req struct {
		Identifier string `json:"identifier"`
		Relation   string `json:"relation"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.InviteMember(c.Request().Context(), familyID, caller, req.Identifier, req.Relation)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) KickMember(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	familyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid family id")
	}
	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.svc.KickMember(c.Request().Context(), familyID, memberID, caller); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LeaveFamily(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	familyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid family id")
	}
	if err := h.svc.LeaveFamily(c.Request().Context(), familyID, caller); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListInvitations(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	invitations, err := h.svc.ListInvitations(c.Request().Context(), caller)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	if invitations == nil {
		invitations = []*FamilyInvitation{}
	}
	return c.JSON(http.StatusOK, invitations)
}

func (h *Handler) AcceptInvitation(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	invID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invitation id")
	}
	m, err := h.svc.AcceptInvitation(c.Request().Context(), invID, caller)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeclineInvitation(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	invID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invitation id")
	}
	if err := h.svc.DeclineInvitation(c.Request().Context(), invID, caller); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
