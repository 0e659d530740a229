package lifecycle

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Handler provides the account deletion endpoint.
type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.DELETE("/accounts/:id", h.DeleteAccount)
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	ctx := c.Request().Context()
	// Deletion authority belongs to the root identity; a parent acting as
	// their child does not become the child for this decision.
	callerID, err := uuid.Parse(auth.IdentityFromContext(ctx).RootID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account id")
	}

	if err := h.coord.DeleteAccount(ctx, callerID, targetID); err != nil {
		if errors.Is(err, errs.ErrPartialSuccess) {
			return c.JSON(http.StatusOK, map[string]string{
				"status": "partial",
				"detail": err.Error(),
			})
		}
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
