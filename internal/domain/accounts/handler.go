package accounts

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Handler provides HTTP handlers for linked accounts and session switching.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/accounts/accessible", h.ListAccessible)
	api.POST("/accounts/switch", h.Switch)
	api.POST("/accounts/switch-back", h.SwitchBack)
	api.POST("/accounts/children", h.CreateChild)
	api.DELETE("/accounts/parent-link", h.RemoveParentLink)
}

// ListAccessible returns the accounts the session's root identity may act
// as, so the set does not shrink while switched.
func (h *Handler) ListAccessible(c echo.Context) error {
	ctx := c.Request().Context()
	rootID, err := uuid.Parse(auth.IdentityFromContext(ctx).RootID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	accessible, err := h.svc.GetAccessibleAccounts(ctx, rootID)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, accessible)
}

func (h *Handler) Switch(c echo.Context) error {
	ctx := c.Request().Context()
	rootID, err := uuid.Parse(auth.IdentityFromContext(ctx).RootID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	var req struct {
		TargetID string `json:"target_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid target id")
	}
	token, err := h.svc.SwitchToAccount(ctx, rootID, targetID, auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) SwitchBack(c echo.Context) error {
	ctx := c.Request().Context()
	rootID, err := uuid.Parse(auth.IdentityFromContext(ctx).RootID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	token, err := h.svc.SwitchBack(rootID, auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) CreateChild(c echo.Context) error {
	ctx := c.Request().Context()
	// Child creation is a root-identity action; a switched session may not
	// spawn children under the account it is acting as.
	rootID, err := uuid.Parse(auth.IdentityFromContext(ctx).RootID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	var child identity.User
	if err := c.Bind(&child); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.CreateChildAccount(ctx, rootID, &child)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) RemoveParentLink(c echo.Context) error {
	ctx := c.Request().Context()
	// The child acts for themselves here, so the effective identity applies.
	childID, err := uuid.Parse(auth.IdentityFromContext(ctx).EffectiveID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	if err := h.svc.RemoveParentLink(ctx, childID); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
