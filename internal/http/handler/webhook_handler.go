package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
)

// WebhookHandler receives billing provider callbacks.
type WebhookHandler struct {
	Auth   *service.AuthService
	Cfg    config.Config
	Logger *zap.Logger
}

// NewWebhookHandler constructs the billing webhook handler.
func NewWebhookHandler(auth *service.AuthService, cfg config.Config, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Auth: auth, Cfg: cfg, Logger: logger}
}

// Billing handles POST /webhooks/billing. The raw body is verified against
// the X-Billing-Signature header (hex HMAC-SHA256 over the payload) before
// any parsing happens.
func (h *WebhookHandler) Billing(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Billing-Signature")) {
		h.Logger.Warn("billing webhook signature rejected",
			zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}

	var event service.BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if event.ID == "" {
		// Some providers omit the event id on test deliveries; synthesize
		// one so dedupe still has a key.
		event.ID = "gen-" + uuid.NewString()
	}

	if err := h.Auth.ApplyBillingEvent(c.Request.Context(), event); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	// Config.Load refuses to start without a secret; an empty one here means
	// a hand-built config, and those fail closed too.
	if h.Cfg.BillingWebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Cfg.BillingWebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
