package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/handler"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/middleware"
)

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(
	cfg config.Config,
	logger *zap.Logger,
	auth *handler.AuthHandler,
	webhook *handler.WebhookHandler,
	bearer *middleware.Auth,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", auth.Healthz)

	r.GET("/authorize", auth.Authorize)
	r.POST("/token", auth.Token)
	r.POST("/introspect", auth.Introspect)
	r.POST("/revoke", auth.Revoke)
	r.POST("/refresh", auth.Refresh)
	r.GET("/userinfo", bearer.RequireBearer, auth.UserInfo)

	r.POST("/webhooks/billing", webhook.Billing)

	return r
}
