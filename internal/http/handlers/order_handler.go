// README: Client-side order endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/order"
	"taxihub/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointReq) toPoint() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

type createOrderReq struct {
	TariffID    string     `json:"tariff_id" binding:"required"`
	Pickup      pointReq   `json:"pickup"`
	Dropoff     pointReq   `json:"dropoff"`
	Stops       []pointReq `json:"stops"`
	Payment     string     `json:"payment"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	payment := types.PaymentMethod(req.Payment)
	if payment == "" {
		payment = types.PayCash
	}
	if payment != types.PayCash && payment != types.PayCard {
		writeError(c, http.StatusBadRequest, "unknown payment method")
		return
	}
	stops := make([]types.Point, len(req.Stops))
	for i, s := range req.Stops {
		stops[i] = s.toPoint()
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		ClientID:    callerID(c),
		TariffID:    types.ID(req.TariffID),
		Pickup:      req.Pickup.toPoint(),
		Dropoff:     req.Dropoff.toPoint(),
		Stops:       stops,
		Payment:     payment,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderView(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if o.ClientID != callerID(c) {
		writeError(c, http.StatusForbidden, "not your order")
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	orders, err := h.order.ListByClient(c.Request.Context(), callerID(c), 50)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderViews(orders))
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req cancelOrderReq
	_ = c.ShouldBindJSON(&req)
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:   types.ID(c.Param("id")),
		ActorType: "client",
		ActorID:   callerID(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": order.StatusCancelled})
}

func orderView(o *order.Order) gin.H {
	v := gin.H{
		"order_id":     o.ID,
		"status":       o.Status,
		"tariff_id":    o.TariffID,
		"price":        o.Price.Amount,
		"discount":     o.Discount.Amount,
		"currency":     o.Price.Currency,
		"payment":      o.Payment,
		"pickup":       gin.H{"lat": o.Pickup.Lat, "lng": o.Pickup.Lng},
		"dropoff":      gin.H{"lat": o.Dropoff.Lat, "lng": o.Dropoff.Lng},
		"distance_km":  o.DistanceKm,
		"duration_min": o.DurationMin,
		"created_at":   o.CreatedAt,
	}
	if o.DriverID != nil {
		v["driver_id"] = *o.DriverID
	}
	if o.ScheduledAt != nil {
		v["scheduled_at"] = *o.ScheduledAt
	}
	if len(o.Stops) > 0 {
		stops := make([]gin.H, len(o.Stops))
		for i, s := range o.Stops {
			stops[i] = gin.H{"lat": s.Point.Lat, "lng": s.Point.Lng}
		}
		v["stops"] = stops
	}
	return v
}

func orderViews(orders []*order.Order) []gin.H {
	out := make([]gin.H, len(orders))
	for i, o := range orders {
		out[i] = orderView(o)
	}
	return out
}
