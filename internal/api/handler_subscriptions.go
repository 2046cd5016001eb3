package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers or replaces a browser push subscription for the acting resident.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub := model.PushSubscription{
		Endpoint:   req.Endpoint,
		ResidentID: actor(c).ID,
		P256DH:     req.P256DH,
		Auth:       req.Auth,
	}
	if err := h.store.SaveSubscription(c.Request.Context(), &sub); err != nil {
		respondError(c, &gate.Error{Kind: gate.KindPersistence, Message: "save subscription failed", Err: err})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the acting resident's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint, actor(c).ID); err != nil {
		respondError(c, &gate.Error{Kind: gate.KindPersistence, Message: "delete subscription failed", Err: err})
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns key without URL decoding; push endpoints are compared verbatim.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription reports whether the endpoint is registered to the acting resident.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required", "kind": gate.KindValidation})
		return
	}

	subs, err := h.store.ListSubscriptions(c.Request.Context(), actor(c).ID)
	if err != nil {
		respondError(c, &gate.Error{Kind: gate.KindPersistence, Message: "list subscriptions failed", Err: err})
		return
	}
	for _, sub := range subs {
		if sub.Endpoint == raw {
			c.JSON(http.StatusOK, gin.H{"registered": true})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found", "kind": gate.KindNotFound})
}
