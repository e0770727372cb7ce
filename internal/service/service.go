package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/workspace"
)

// ScopeAssistant is the single scope this service issues.
const ScopeAssistant = "assistant"

// ScopeLegacy marks introspection results resolved through the legacy
// token bridge.
const ScopeLegacy = "legacy"

// AuthService owns the token and authorization lifecycle: code issuance,
// exchange, introspection, revocation, and refresh rotation. Stateless; all
// coordination happens through the store's conditional updates.
type AuthService struct {
	users         repository.UserRepository
	entitlements  repository.EntitlementRepository
	codes         repository.CodeRepository
	deviceTokens  repository.DeviceTokenRepository
	refreshTokens repository.RefreshTokenRepository
	events        repository.WebhookEventRepository
	codec         *token.Codec
	workspace     workspace.Checker
	cfg           config.Config
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthService wires the service.
func NewAuthService(
	users repository.UserRepository,
	entitlements repository.EntitlementRepository,
	codes repository.CodeRepository,
	deviceTokens repository.DeviceTokenRepository,
	refreshTokens repository.RefreshTokenRepository,
	events repository.WebhookEventRepository,
	codec *token.Codec,
	checker workspace.Checker,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		entitlements:  entitlements,
		codes:         codes,
		deviceTokens:  deviceTokens,
		refreshTokens: refreshTokens,
		events:        events,
		codec:         codec,
		workspace:     checker,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// TokenResponse is the /token and /refresh success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(s.cfg.ServiceName).Start(ctx, name)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func (s *AuthService) audit(event string, fields ...zap.Field) {
	s.log().Info(event, fields...)
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
