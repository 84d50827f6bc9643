package transactions

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transflow/riskd/internal/pagination"
)

// Handler provides HTTP endpoints for transaction history and statistics.
type Handler struct {
	service *Service
}

// NewHandler creates a new transactions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up transaction and statistics routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
	r.GET("/statistics/fraud", h.FraudStatistics)
	r.GET("/statistics/channels", h.ChannelStatistics)
	r.GET("/statistics/hourly", h.HourlyStatistics)
}

// ListTransactions handles GET /v1/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
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
		CustomerID: c.Query("customer_id"),
		Channel:    c.Query("channel"),
		RiskLevel:  c.Query("risk_level"),
		Cursor:     cursor,
		Limit:      limit,
	}
	if fraud := c.Query("is_fraud"); fraud != "" {
		v, err := strconv.ParseBool(fraud)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "is_fraud must be a boolean",
			})
			return
		}
		f.OnlyFraud = &v
	}

	items, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(items, limit, func(r *Record) (time.Time, string) {
		return r.CreatedAt, r.TransactionID
	})
	if page == nil {
		page = []*Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": page,
		"next_cursor":  next,
		"has_more":     hasMore,
	})
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "no such transaction",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": r})
}

// FraudStatistics handles GET /v1/statistics/fraud
func (h *Handler) FraudStatistics(c *gin.Context) {
	stats, err := h.service.FraudStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ChannelStatistics handles GET /v1/statistics/channels
func (h *Handler) ChannelStatistics(c *gin.Context) {
	stats, err := h.service.ChannelStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if stats == nil {
		stats = []ChannelBucket{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": stats})
}

// HourlyStatistics handles GET /v1/statistics/hourly
func (h *Handler) HourlyStatistics(c *gin.Context) {
	stats, err := h.service.HourlyStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hours": stats})
}
