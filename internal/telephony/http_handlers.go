package telephony

import (
	"errors"
	"io"
	"net/http"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WebhookHandler receives Bracknet webhooks and forwards them to the call
// lifecycle engine. One endpoint per event name plus a legacy/generic
// endpoint with no fixed name.
//
// At-least-once delivery: duplicates and events for unknown call ids are
// absorbed by the engine; the handler only rejects bodies it cannot parse,
// failed signature checks and missing required correlation ids.
type WebhookHandler struct {
	Engine *calls.Engine

	// Secret enables HMAC signature verification when non-empty.
	Secret string

	// Locks, when set, takes a short redis lock per external call id so
	// that in multi-instance deployments concurrent deliveries for the same
	// call land on one instance at a time. The store's own per-id
	// serialization remains the correctness guarantee; this only cuts
	// cross-instance row-lock contention.
	Locks *redis.Client
}

const callLockTTL = 10 * time.Second

func (h WebhookHandler) Register(r gin.IRouter) {
	r.POST("/webhooks/bracknet", h.handleGeneric)
	r.POST("/webhooks/bracknet/:event", h.handleNamed)
}

func (h WebhookHandler) handleNamed(c *gin.Context) {
	h.handle(c, c.Param("event"))
}

func (h WebhookHandler) handleGeneric(c *gin.Context) {
	h.handle(c, "")
}

func (h WebhookHandler) handle(c *gin.Context, eventName string) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.Secret != "" {
		if !VerifySignature(h.Secret, body, c.GetHeader(SignatureHeader)) {
			log.Warn("webhook signature rejected", "event", eventName)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	evt, err := ParseWebhookEvent(eventName, body)
	if err != nil {
		log.Warn("webhook parse failed", "event", eventName, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if h.Locks != nil && evt.ExternalCallID != "" {
		owner := uuid.NewString()
		if ok, lockErr := utils.AcquireCallLock(c.Request.Context(), h.Locks, evt.ExternalCallID, owner, callLockTTL); lockErr != nil {
			log.Warn("call lock unavailable", "external_call_id", evt.ExternalCallID, "err", lockErr)
		} else if ok {
			defer func() {
				if relErr := utils.ReleaseCallLock(c.Request.Context(), h.Locks, evt.ExternalCallID, owner); relErr != nil {
					log.Warn("call lock release failed", "external_call_id", evt.ExternalCallID, "err", relErr)
				}
			}()
		}
	}

	res, err := h.Engine.HandleWebhook(c.Request.Context(), evt)
	if err != nil {
		if errors.Is(err, calls.ErrValidation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("webhook handling failed", "event", evt.Name, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook handling failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "handled": res.Handled, "changed": res.Changed})
}
