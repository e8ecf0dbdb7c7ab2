// README: Driver-side endpoints: presence, the ether, and ride transitions.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/filter"
	"taxihub/internal/modules/location"
	"taxihub/internal/modules/order"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

type DriverHandler struct {
	order    *order.Service
	filters  *filter.Service
	sectors  *location.Store
	users    *user.Store
	presence *location.Presence
}

func NewDriverHandler(
	orderSvc *order.Service,
	filterSvc *filter.Service,
	sectors *location.Store,
	users *user.Store,
	presence *location.Presence,
) *DriverHandler {
	return &DriverHandler{
		order:    orderSvc,
		filters:  filterSvc,
		sectors:  sectors,
		users:    users,
		presence: presence,
	}
}

type positionReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) SetOnline(c *gin.Context) {
	var req positionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	driverID := callerID(c)
	ctx := c.Request.Context()
	if err := h.users.SetDriverOnline(ctx, driverID, true); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.presence.SetOnline(ctx, driverID, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}

func (h *DriverHandler) SetOffline(c *gin.Context) {
	driverID := callerID(c)
	ctx := c.Request.Context()
	if err := h.users.SetDriverOnline(ctx, driverID, false); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.presence.SetOffline(ctx, driverID); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "offline"})
}

// UpdateLocation refreshes the driver's position in the presence set.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req positionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.presence.SetOnline(c.Request.Context(), callerID(c), types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ether lists the open orders that pass the driver's enabled filters.
func (h *DriverHandler) Ether(c *gin.Context) {
	ctx := c.Request.Context()
	driverID := callerID(c)

	orders, err := h.order.ListBroadcastable(ctx)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	fs, err := h.filters.ListEnabledByDriver(ctx, driverID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	sectors, err := h.sectors.All(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	visible := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		cand := filter.Candidate{
			Pickup:      o.Pickup,
			Dropoff:     o.Dropoff,
			Price:       o.Price,
			DistanceKm:  o.DistanceKm,
			DurationMin: o.DurationMin,
			Payment:     o.Payment,
			CreatedAt:   o.CreatedAt,
		}
		if filter.MatchesAny(cand, fs, sectors) {
			visible = append(visible, orderView(o))
		}
	}
	c.JSON(http.StatusOK, visible)
}

func (h *DriverHandler) Accept(c *gin.Context) {
	err := h.order.Accept(c.Request.Context(), order.AcceptCommand{
		OrderID:  types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusAccepted})
}

func (h *DriverHandler) Arrive(c *gin.Context) {
	err := h.order.Arrive(c.Request.Context(), order.ArriveCommand{
		OrderID:  types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusDriverArrived})
}

func (h *DriverHandler) Start(c *gin.Context) {
	err := h.order.Start(c.Request.Context(), order.StartCommand{
		OrderID:  types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusInProgress})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	err := h.order.Complete(c.Request.Context(), order.CompleteCommand{
		OrderID:  types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusCompleted})
}

func (h *DriverHandler) Cancel(c *gin.Context) {
	var req cancelOrderReq
	_ = c.ShouldBindJSON(&req)
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:   types.ID(c.Param("id")),
		ActorType: "driver",
		ActorID:   callerID(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusCancelled})
}

func (h *DriverHandler) ListMine(c *gin.Context) {
	orders, err := h.order.ListByDriver(c.Request.Context(), callerID(c), 50)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderViews(orders))
}
