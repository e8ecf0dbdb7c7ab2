// README: Promo code activation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/promo"
)

type PromoHandler struct {
	promo *promo.Service
}

func NewPromoHandler(svc *promo.Service) *PromoHandler {
	return &PromoHandler{promo: svc}
}

type activateCodeReq struct {
	Code string `json:"code" binding:"required"`
}

func (h *PromoHandler) Activate(c *gin.Context) {
	var req activateCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	usage, err := h.promo.ActivateCode(c.Request.Context(), callerID(c), req.Code)
	if err != nil {
		writePromoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activated_at": usage.ActivatedAt,
		"expires_at":   usage.ExpiresAt,
	})
}
