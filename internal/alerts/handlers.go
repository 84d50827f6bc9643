package alerts

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transflow/riskd/internal/pagination"
)

// Handler provides HTTP endpoints for alert operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new alert handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up alert routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/alerts", h.ListAlerts)
	r.GET("/alerts/summary", h.Summary)
	r.GET("/alerts/:id", h.GetAlert)
	r.POST("/alerts/:id/acknowledge", h.Acknowledge)
	r.POST("/alerts/:id/resolve", h.Resolve)
	r.POST("/alerts/:id/false-positive", h.FalsePositive)
}

// ListAlerts handles GET /v1/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return
	}

	f := Filter{
		RiskLevel:  c.Query("risk_level"),
		CustomerID: c.Query("customer_id"),
		Query:      c.Query("q"),
		Cursor:     cursor,
		Limit:      limit,
	}
	if status := c.Query("status"); status != "" {
		s := Status(status)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "unknown status " + status,
			})
			return
		}
		f.Status = s
	}

	items, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(items, limit, func(a *Alert) (time.Time, string) {
		return a.CreatedAt, a.ID
	})
	if page == nil {
		page = []*Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":      page,
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

// Summary handles GET /v1/alerts/summary
func (h *Handler) Summary(c *gin.Context) {
	counts, err := h.service.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": counts,
	})
}

// GetAlert handles GET /v1/alerts/:id
func (h *Handler) GetAlert(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": a})
}

// Acknowledge handles POST /v1/alerts/:id/acknowledge
func (h *Handler) Acknowledge(c *gin.Context) {
	h.runTransition(c, h.service.Acknowledge)
}

// Resolve handles POST /v1/alerts/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	h.runTransition(c, h.service.Resolve)
}

// FalsePositive handles POST /v1/alerts/:id/false-positive
func (h *Handler) FalsePositive(c *gin.Context) {
	h.runTransition(c, h.service.MarkFalsePositive)
}

func (h *Handler) runTransition(c *gin.Context, fn func(ctx context.Context, id string) (*Alert, error)) {
	a, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": a})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no such alert",
		})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	case errors.Is(err, ErrTransitionConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "alert status changed concurrently, fetch and retry",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
