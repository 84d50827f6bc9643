package webhooks

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transflow/riskd/internal/idgen"
	"github.com/transflow/riskd/internal/security"
)

// Handler provides HTTP endpoints for managing webhook subscriptions.
type Handler struct {
	store Store
}

// NewHandler creates a new webhooks handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up webhook subscription routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/webhooks", h.ListSubscriptions)
	r.POST("/webhooks", h.CreateSubscription)
	r.GET("/webhooks/:id", h.GetSubscription)
	r.DELETE("/webhooks/:id", h.DeleteSubscription)
}

var knownEvents = map[EventType]bool{
	EventAlertCreated:      true,
	EventDecisionHighRisk:  true,
	EventDecisionEvaluated: true,
}

type createSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required"`
	Secret string   `json:"secret"`
	Events []string `json:"events" binding:"required,min=1"`
}

// CreateSubscription handles POST /v1/webhooks
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	events := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := EventType(e)
		if !knownEvents[et] {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "unknown event type " + e,
			})
			return
		}
		events = append(events, et)
	}

	sub := &Subscription{
		ID:        idgen.Webhook(),
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"subscription": sub})
}

// ListSubscriptions handles GET /v1/webhooks
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// GetSubscription handles GET /v1/webhooks/:id
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no such subscription",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// DeleteSubscription handles DELETE /v1/webhooks/:id
func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}
