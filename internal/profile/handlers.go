package profile

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transflow/riskd/internal/validation"
)

// Handler provides HTTP endpoints for inspecting customer profiles.
type Handler struct {
	registry *Registry
}

// NewHandler creates a new profile handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes sets up profile routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/customers/:id/profile", h.GetProfile)
}

// channelView is the read model for one channel's statistics.
type channelView struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean_amount"`
	StdDev float64 `json:"stddev_amount"`
}

// profileView is the read model returned to callers. Internal running
// sums (Welford M2) stay internal.
type profileView struct {
	CustomerID   string                 `json:"customer_id"`
	TotalCount   int64                  `json:"total_count"`
	Channels     map[string]channelView `json:"channels"`
	ActiveHours  []int                  `json:"active_hours"`
	DeviceCount  int                    `json:"device_count"`
	KnownOrigins int                    `json:"known_origins"`
	Recent10m    int                    `json:"transactions_last_10m"`
	Recent1h     int                    `json:"transactions_last_1h"`
	Amount24h    float64                `json:"amount_last_24h"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// GetProfile handles GET /v1/customers/:id/profile
func (h *Handler) GetProfile(c *gin.Context) {
	customerID := c.Param("id")
	if err := validation.ValidateCustomerID(customerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	snap, err := h.registry.Snapshot(c.Request.Context(), customerID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "store_unavailable",
				"message": "profile store is unavailable",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	now := time.Now()
	view := profileView{
		CustomerID:   snap.CustomerID,
		TotalCount:   snap.TotalCount,
		Channels:     make(map[string]channelView, len(snap.Channels)),
		ActiveHours:  []int{},
		DeviceCount:  len(snap.Devices),
		KnownOrigins: len(snap.Origins),
		Recent10m:    snap.CountSince(now.Add(-10 * time.Minute)),
		Recent1h:     snap.CountSince(now.Add(-time.Hour)),
		Amount24h:    snap.AmountSince(now.Add(-24 * time.Hour)),
		UpdatedAt:    snap.UpdatedAt,
	}
	for ch, s := range snap.Channels {
		view.Channels[ch] = channelView{Count: s.Count, Mean: s.Mean, StdDev: s.StdDev()}
	}
	for hr, n := range snap.Hours {
		if n > 0 {
			view.ActiveHours = append(view.ActiveHours, hr)
		}
	}

	c.JSON(http.StatusOK, gin.H{"profile": view})
}
