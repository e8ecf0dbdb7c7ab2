// README: Public catalog: tariffs and city sectors.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/location"
	"taxihub/internal/modules/tariff"
)

type CatalogHandler struct {
	tariffs *tariff.Store
	sectors *location.Store
}

func NewCatalogHandler(tariffs *tariff.Store, sectors *location.Store) *CatalogHandler {
	return &CatalogHandler{tariffs: tariffs, sectors: sectors}
}

func (h *CatalogHandler) Tariffs(c *gin.Context) {
	ts, err := h.tariffs.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, len(ts))
	for i, t := range ts {
		out[i] = gin.H{
			"id":        t.ID,
			"name":      t.Name,
			"base_fare": t.BaseFare.Amount,
			"per_km":    t.PerKm,
			"currency":  t.BaseFare.Currency,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) Sectors(c *gin.Context) {
	sectors, err := h.sectors.All(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(sectors))
	for _, s := range sectors {
		polygon := make([]gin.H, len(s.Polygon))
		for i, p := range s.Polygon {
			polygon[i] = gin.H{"lat": p.Lat, "lng": p.Lng}
		}
		out = append(out, gin.H{
			"id":      s.ID,
			"name":    s.Name,
			"polygon": polygon,
		})
	}
	c.JSON(http.StatusOK, out)
}
