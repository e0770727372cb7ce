package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	httptransport "github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http"
	httpHandler "github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/handler"
	httpmiddleware "github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/middleware"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/identity"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
)

const (
	testClientID    = "alexa-assistant-skill"
	testRedirectURI = "https://pitangui.amazon.com/api/skill/link/TESTSKILL"
	testAdminKey    = "admin-test-key"
	testHookSecret  = "whsec-test"
)

var _ repository.UserRepository = (*stubUserRepo)(nil)
var _ repository.EntitlementRepository = (*stubEntitlementRepo)(nil)
var _ repository.CodeRepository = (*stubCodeRepo)(nil)
var _ repository.DeviceTokenRepository = (*stubDeviceTokenRepo)(nil)
var _ repository.RefreshTokenRepository = (*stubRefreshTokenRepo)(nil)
var _ repository.WebhookEventRepository = (*stubEventRepo)(nil)

type stubUserRepo struct {
	users map[int64]domain.User
}

func (r *stubUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *stubUserRepo) GetByAssistantLinkRef(ctx context.Context, ref string) (domain.User, error) {
	for _, u := range r.users {
		if ref != "" && u.AssistantLinkRef == ref {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *stubUserRepo) LinkAssistantAccount(ctx context.Context, userID int64, ref string) error {
	return nil
}

type stubEntitlementRepo struct {
	ents map[int64]domain.Entitlement
}

func (r *stubEntitlementRepo) GetByUser(ctx context.Context, userID int64) (domain.Entitlement, error) {
	e, ok := r.ents[userID]
	if !ok {
		return domain.Entitlement{}, repository.ErrNotFound
	}
	return e, nil
}

func (r *stubEntitlementRepo) Activate(ctx context.Context, userID int64, key string) error {
	r.ents[userID] = domain.Entitlement{UserID: userID, Key: key, Status: domain.EntitlementActive}
	return nil
}

func (r *stubEntitlementRepo) Deactivate(ctx context.Context, userID int64) error {
	if e, ok := r.ents[userID]; ok {
		e.Status = domain.EntitlementInactive
		r.ents[userID] = e
	}
	return nil
}

type stubCodeRepo struct {
	codes map[string]domain.AuthorizationCode
}

func (r *stubCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	r.codes[code.Code] = code
	return nil
}

func (r *stubCodeRepo) Get(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error) {
	c, ok := r.codes[code]
	if !ok || c.ClientID != clientID || c.RedirectURI != redirectURI {
		return domain.AuthorizationCode{}, repository.ErrNotFound
	}
	return c, nil
}

func (r *stubCodeRepo) Consume(ctx context.Context, code string) (bool, error) {
	c, ok := r.codes[code]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	r.codes[code] = c
	return true, nil
}

type stubDeviceTokenRepo struct {
	tokens map[string]domain.DeviceToken
}

func (r *stubDeviceTokenRepo) Create(ctx context.Context, t domain.DeviceToken) error {
	r.tokens[t.Token] = t
	return nil
}

func (r *stubDeviceTokenRepo) Get(ctx context.Context, tokenValue string) (domain.DeviceToken, error) {
	t, ok := r.tokens[tokenValue]
	if !ok {
		return domain.DeviceToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *stubDeviceTokenRepo) HasLive(ctx context.Context, userID int64, now time.Time) (bool, error) {
	for _, t := range r.tokens {
		if t.UserID == userID && t.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubDeviceTokenRepo) Revoke(ctx context.Context, tokenValue string) error {
	if t, ok := r.tokens[tokenValue]; ok {
		t.Revoked = true
		r.tokens[tokenValue] = t
	}
	return nil
}

func (r *stubDeviceTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for k, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			r.tokens[k] = t
			n++
		}
	}
	return n, nil
}

func (r *stubDeviceTokenRepo) RevokeEverything(ctx context.Context) (int64, error) {
	var n int64
	for k, t := range r.tokens {
		if !t.Revoked {
			t.Revoked = true
			r.tokens[k] = t
			n++
		}
	}
	return n, nil
}

type stubRefreshTokenRepo struct {
	tokens map[string]domain.RefreshToken
}

func (r *stubRefreshTokenRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	r.tokens[t.Token] = t
	return nil
}

func (r *stubRefreshTokenRepo) Get(ctx context.Context, tokenValue string) (domain.RefreshToken, error) {
	t, ok := r.tokens[tokenValue]
	if !ok {
		return domain.RefreshToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *stubRefreshTokenRepo) Consume(ctx context.Context, tokenValue string) (bool, error) {
	t, ok := r.tokens[tokenValue]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	r.tokens[tokenValue] = t
	return true, nil
}

func (r *stubRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for k, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			r.tokens[k] = t
			n++
		}
	}
	return n, nil
}

type stubEventRepo struct {
	seen map[string]bool
}

func (r *stubEventRepo) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	if r.seen[eventID] {
		return false, nil
	}
	r.seen[eventID] = true
	return true, nil
}

type stubWorkspace struct {
	connected bool
}

func (w *stubWorkspace) Connected(ctx context.Context, userID int64) (bool, error) {
	return w.connected, nil
}

type testEnv struct {
	router        *gin.Engine
	svc           *service.AuthService
	codec         *token.Codec
	cfg           config.Config
	users         *stubUserRepo
	entitlements  *stubEntitlementRepo
	codes         *stubCodeRepo
	deviceTokens  *stubDeviceTokenRepo
	refreshTokens *stubRefreshTokenRepo
	events        *stubEventRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	adminHash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Config{
		ServiceName:          "assistant-link-auth",
		ClientID:             testClientID,
		RedirectURIPrefixes:  []string{"https://pitangui.amazon.com/", "https://layla.amazon.com/"},
		AuthCodeTTL:          600 * time.Second,
		DeviceTokenTTL:       24 * time.Hour,
		SessionTokenTTL:      time.Hour,
		RefreshTokenTTL:      720 * time.Hour,
		OpaqueTokenBytes:     32,
		SignInURL:            "https://app.example.com/signin",
		BillingURL:           "https://app.example.com/billing",
		ConnectURL:           "https://app.example.com/connect",
		AdminKeyHash:         string(adminHash),
		BillingWebhookSecret: testHookSecret,
	}

	codec, err := token.NewCodec([]byte("test-signing-key-0123456789abcdef"), "assistant-link-auth")
	require.NoError(t, err)

	env := &testEnv{
		codec:         codec,
		cfg:           cfg,
		users:         &stubUserRepo{users: map[int64]domain.User{10: {ID: 10, Email: "user@example.com", Name: "Test User"}}},
		entitlements:  &stubEntitlementRepo{ents: make(map[int64]domain.Entitlement)},
		codes:         &stubCodeRepo{codes: make(map[string]domain.AuthorizationCode)},
		deviceTokens:  &stubDeviceTokenRepo{tokens: make(map[string]domain.DeviceToken)},
		refreshTokens: &stubRefreshTokenRepo{tokens: make(map[string]domain.RefreshToken)},
		events:        &stubEventRepo{seen: make(map[string]bool)},
	}

	logger := zap.NewNop()
	env.svc = service.NewAuthService(
		env.users, env.entitlements, env.codes, env.deviceTokens, env.refreshTokens, env.events,
		codec, &stubWorkspace{connected: true}, cfg, logger,
	)

	resolver := identity.NewResolver(codec, nil, logger)
	authHandler := httpHandler.NewAuthHandler(env.svc, resolver, cfg)
	webhookHandler := httpHandler.NewWebhookHandler(env.svc, cfg, logger)
	bearer := &httpmiddleware.Auth{AuthService: env.svc}

	env.router = httptransport.NewRouter(cfg, logger, authHandler, webhookHandler, bearer)
	return env
}

// grantFullAccess activates the entitlement and seeds a live device token so
// /authorize lets the user through.
func (e *testEnv) grantFullAccess(t *testing.T, userID int64) {
	t.Helper()
	require.NoError(t, e.entitlements.Activate(context.Background(), userID, "license-basic"))
	require.NoError(t, e.deviceTokens.Create(context.Background(), domain.DeviceToken{
		Token:     "seed-device-token",
		UserID:    userID,
		ClientID:  testClientID,
		Scope:     service.ScopeAssistant,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

// sessionBearer signs a session token the identity resolver will accept.
func (e *testEnv) sessionBearer(t *testing.T, userID int64, email string) string {
	t.Helper()
	signed, err := e.codec.Sign(userID, email, service.ScopeAssistant, time.Hour)
	require.NoError(t, err)
	return "Bearer " + signed
}
