// README: Driver filter CRUD endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/filter"
	"taxihub/internal/types"
)

type FilterHandler struct {
	filters *filter.Service
}

func NewFilterHandler(svc *filter.Service) *FilterHandler {
	return &FilterHandler{filters: svc}
}

type simplePricingReq struct {
	MinPrice int64 `json:"min_price"`
	MinPerKm int64 `json:"min_per_km"`
}

type compositePricingReq struct {
	DurationThresholdMin float64 `json:"duration_threshold_min"`
	DayShortMin          int64   `json:"day_short_min"`
	DayLongMin           int64   `json:"day_long_min"`
	NightShortMin        int64   `json:"night_short_min"`
	NightLongMin         int64   `json:"night_long_min"`
	CityPerKmMin         int64   `json:"city_per_km_min"`
	SuburbPerKmMin       int64   `json:"suburb_per_km_min"`
	SuburbDistanceKm     float64 `json:"suburb_distance_km"`
}

type filterReq struct {
	Name             string              `json:"name" binding:"required"`
	Enabled          bool                `json:"enabled"`
	PickupMode       string              `json:"pickup_mode"`
	PickupAnchor     pointReq            `json:"pickup_anchor"`
	PickupRadiusKm   float64             `json:"pickup_radius_km"`
	PickupSectorIDs  []string            `json:"pickup_sector_ids"`
	DropoffSectorIDs []string            `json:"dropoff_sector_ids"`
	PricingMode      string              `json:"pricing_mode"`
	Simple           simplePricingReq    `json:"simple"`
	Composite        compositePricingReq `json:"composite"`
	Payments         []string            `json:"payments"`
	AutoAccept       bool                `json:"auto_accept"`
	Ether            bool                `json:"ether"`
	Cyclic           bool                `json:"cyclic"`
}

func (r filterReq) toFilter(id, driverID types.ID) *filter.Filter {
	f := &filter.Filter{
		ID:               id,
		DriverID:         driverID,
		Name:             r.Name,
		Enabled:          r.Enabled,
		PickupMode:       filter.GeofenceMode(r.PickupMode),
		PickupAnchor:     r.PickupAnchor.toPoint(),
		PickupRadiusKm:   r.PickupRadiusKm,
		PickupSectorIDs:  toIDs(r.PickupSectorIDs),
		DropoffSectorIDs: toIDs(r.DropoffSectorIDs),
		PricingMode:      filter.PricingMode(r.PricingMode),
		Simple: filter.SimplePricing{
			MinPrice: r.Simple.MinPrice,
			MinPerKm: r.Simple.MinPerKm,
		},
		Composite: filter.CompositePricing{
			DurationThresholdMin: r.Composite.DurationThresholdMin,
			DayShortMin:          r.Composite.DayShortMin,
			DayLongMin:           r.Composite.DayLongMin,
			NightShortMin:        r.Composite.NightShortMin,
			NightLongMin:         r.Composite.NightLongMin,
			CityPerKmMin:         r.Composite.CityPerKmMin,
			SuburbPerKmMin:       r.Composite.SuburbPerKmMin,
			SuburbDistanceKm:     r.Composite.SuburbDistanceKm,
		},
		AutoAccept: r.AutoAccept,
		Ether:      r.Ether,
		Cyclic:     r.Cyclic,
	}
	for _, p := range r.Payments {
		f.Payments = append(f.Payments, types.PaymentMethod(p))
	}
	return f
}

func toIDs(in []string) []types.ID {
	out := make([]types.ID, len(in))
	for i, s := range in {
		out[i] = types.ID(s)
	}
	return out
}

func (h *FilterHandler) Create(c *gin.Context) {
	var req filterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	f := req.toFilter("", callerID(c))
	if err := h.filters.Create(c.Request.Context(), f); err != nil {
		writeFilterError(c, err)
		return
	}
	c.JSON(http.StatusCreated, filterView(f))
}

func (h *FilterHandler) Update(c *gin.Context) {
	var req filterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	f := req.toFilter(types.ID(c.Param("id")), callerID(c))
	if err := h.filters.Update(c.Request.Context(), f); err != nil {
		writeFilterError(c, err)
		return
	}
	c.JSON(http.StatusOK, filterView(f))
}

type toggleReq struct {
	Enabled bool `json:"enabled"`
}

func (h *FilterHandler) Toggle(c *gin.Context) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.filters.Toggle(c.Request.Context(), callerID(c), types.ID(c.Param("id")), req.Enabled)
	if err != nil {
		writeFilterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
}

func (h *FilterHandler) Delete(c *gin.Context) {
	err := h.filters.Delete(c.Request.Context(), callerID(c), types.ID(c.Param("id")))
	if err != nil {
		writeFilterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *FilterHandler) List(c *gin.Context) {
	fs, err := h.filters.ListByDriver(c.Request.Context(), callerID(c))
	if err != nil {
		writeFilterError(c, err)
		return
	}
	out := make([]gin.H, len(fs))
	for i, f := range fs {
		out[i] = filterView(f)
	}
	c.JSON(http.StatusOK, out)
}

func filterView(f *filter.Filter) gin.H {
	return gin.H{
		"id":                 f.ID,
		"name":               f.Name,
		"enabled":            f.Enabled,
		"pickup_mode":        f.PickupMode,
		"pickup_anchor":      gin.H{"lat": f.PickupAnchor.Lat, "lng": f.PickupAnchor.Lng},
		"pickup_radius_km":   f.PickupRadiusKm,
		"pickup_sector_ids":  f.PickupSectorIDs,
		"dropoff_sector_ids": f.DropoffSectorIDs,
		"pricing_mode":       f.PricingMode,
		"payments":           f.Payments,
		"auto_accept":        f.AutoAccept,
		"ether":              f.Ether,
		"cyclic":             f.Cyclic,
	}
}
