// README: Shared handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/filter"
	"taxihub/internal/modules/order"
	"taxihub/internal/modules/promo"
	"taxihub/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func callerID(c *gin.Context) types.ID {
	return types.ID(c.GetString(middleware.ContextUserID))
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrActiveOrder),
		errors.Is(err, order.ErrDriverBusy),
		errors.Is(err, order.ErrDriverOffline):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrTariffInactive):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeFilterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, filter.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, filter.ErrDuplicateName):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, filter.ErrInvalidFilter):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePromoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, promo.ErrCodeNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, promo.ErrCodeExpired),
		errors.Is(err, promo.ErrCodeLimitReached),
		errors.Is(err, promo.ErrCodeAlreadyUsed),
		errors.Is(err, promo.ErrActiveUsage):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
