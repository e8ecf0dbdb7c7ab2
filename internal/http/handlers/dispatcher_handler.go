// README: Dispatcher console endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/order"
	"taxihub/internal/types"
)

type DispatcherHandler struct {
	order *order.Service
}

func NewDispatcherHandler(svc *order.Service) *DispatcherHandler {
	return &DispatcherHandler{order: svc}
}

// Pool lists every order currently visible to drivers.
func (h *DispatcherHandler) Pool(c *gin.Context) {
	orders, err := h.order.ListBroadcastable(c.Request.Context())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderViews(orders))
}

type assignReq struct {
	DriverID string `json:"driver_id" binding:"required"`
}

// Assign binds an online, free driver to an open order on the dispatcher's
// behalf.
func (h *DispatcherHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.order.Assign(c.Request.Context(), order.AssignCommand{
		OrderID:      types.ID(c.Param("id")),
		DriverID:     types.ID(req.DriverID),
		DispatcherID: callerID(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusAccepted})
}

type dispatcherCancelReq struct {
	Reason string `json:"reason"`
}

func (h *DispatcherHandler) Cancel(c *gin.Context) {
	var req dispatcherCancelReq
	_ = c.ShouldBindJSON(&req)
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:   types.ID(c.Param("id")),
		ActorType: "dispatcher",
		ActorID:   callerID(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusCancelled})
}
