package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
)

var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.EntitlementRepository = (*memEntitlementRepo)(nil)
var _ repository.CodeRepository = (*memCodeRepo)(nil)
var _ repository.DeviceTokenRepository = (*memDeviceTokenRepo)(nil)
var _ repository.RefreshTokenRepository = (*memRefreshTokenRepo)(nil)
var _ repository.WebhookEventRepository = (*memEventRepo)(nil)

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
	links map[int64]string
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[int64]domain.User), links: make(map[int64]string)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *memUserRepo) GetByAssistantLinkRef(ctx context.Context, ref string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if ref != "" && u.AssistantLinkRef == ref {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (r *memUserRepo) LinkAssistantAccount(ctx context.Context, userID int64, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	r.links[userID] = ref
	return nil
}

type memEntitlementRepo struct {
	mu   sync.Mutex
	ents map[int64]domain.Entitlement
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{ents: make(map[int64]domain.Entitlement)}
}

func (r *memEntitlementRepo) GetByUser(ctx context.Context, userID int64) (domain.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ents[userID]
	if !ok {
		return domain.Entitlement{}, repository.ErrNotFound
	}
	return e, nil
}

func (r *memEntitlementRepo) Activate(ctx context.Context, userID int64, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ents[userID] = domain.Entitlement{UserID: userID, Key: key, Status: domain.EntitlementActive}
	return nil
}

func (r *memEntitlementRepo) Deactivate(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.ents[userID]; ok {
		e.Status = domain.EntitlementInactive
		r.ents[userID] = e
	}
	return nil
}

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]domain.AuthorizationCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[string]domain.AuthorizationCode)}
}

func (r *memCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Code] = code
	return nil
}

func (r *memCodeRepo) Get(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok || c.ClientID != clientID || c.RedirectURI != redirectURI {
		return domain.AuthorizationCode{}, repository.ErrNotFound
	}
	return c, nil
}

func (r *memCodeRepo) Consume(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	r.codes[code] = c
	return true, nil
}

type memDeviceTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.DeviceToken
}

func newMemDeviceTokenRepo() *memDeviceTokenRepo {
	return &memDeviceTokenRepo{tokens: make(map[string]domain.DeviceToken)}
}

func (r *memDeviceTokenRepo) Create(ctx context.Context, t domain.DeviceToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Token] = t
	return nil
}

func (r *memDeviceTokenRepo) Get(ctx context.Context, tokenValue string) (domain.DeviceToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenValue]
	if !ok {
		return domain.DeviceToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *memDeviceTokenRepo) HasLive(ctx context.Context, userID int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID && t.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memDeviceTokenRepo) Revoke(ctx context.Context, tokenValue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenValue]; ok {
		t.Revoked = true
		r.tokens[tokenValue] = t
	}
	return nil
}

func (r *memDeviceTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memDeviceTokenRepo) RevokeEverything(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

type memRefreshTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]domain.RefreshToken
	createErr error
}

func newMemRefreshTokenRepo() *memRefreshTokenRepo {
	return &memRefreshTokenRepo{tokens: make(map[string]domain.RefreshToken)}
}

func (r *memRefreshTokenRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.tokens[t.Token] = t
	return nil
}

func (r *memRefreshTokenRepo) Get(ctx context.Context, tokenValue string) (domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenValue]
	if !ok {
		return domain.RefreshToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *memRefreshTokenRepo) Consume(ctx context.Context, tokenValue string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenValue]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	r.tokens[tokenValue] = t
	return true, nil
}

func (r *memRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

type memEventRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{seen: make(map[string]bool)}
}

func (r *memEventRepo) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[eventID] {
		return false, nil
	}
	r.seen[eventID] = true
	return true, nil
}

type fakeWorkspace struct {
	connected bool
	err       error
}

func (w *fakeWorkspace) Connected(ctx context.Context, userID int64) (bool, error) {
	return w.connected, w.err
}

type fixture struct {
	svc           *service.AuthService
	users         *memUserRepo
	entitlements  *memEntitlementRepo
	codes         *memCodeRepo
	deviceTokens  *memDeviceTokenRepo
	refreshTokens *memRefreshTokenRepo
	events        *memEventRepo
	workspace     *fakeWorkspace
	codec         *token.Codec
	cfg           config.Config
}

const (
	testClientID    = "alexa-assistant-skill"
	testRedirectURI = "https://pitangui.amazon.com/api/skill/link/TESTSKILL"
)

func newFixture(t *testing.T, users ...domain.User) *fixture {
	t.Helper()

	cfg := config.Config{
		ServiceName:         "assistant-link-auth",
		ClientID:            testClientID,
		RedirectURIPrefixes: []string{"https://pitangui.amazon.com/", "https://layla.amazon.com/"},
		AuthCodeTTL:         600 * time.Second,
		DeviceTokenTTL:      24 * time.Hour,
		SessionTokenTTL:     time.Hour,
		RefreshTokenTTL:     720 * time.Hour,
		OpaqueTokenBytes:    32,
	}

	codec, err := token.NewCodec([]byte("test-signing-key-0123456789abcdef"), "assistant-link-auth")
	require.NoError(t, err)

	f := &fixture{
		users:         newMemUserRepo(users...),
		entitlements:  newMemEntitlementRepo(),
		codes:         newMemCodeRepo(),
		deviceTokens:  newMemDeviceTokenRepo(),
		refreshTokens: newMemRefreshTokenRepo(),
		events:        newMemEventRepo(),
		workspace:     &fakeWorkspace{connected: true},
		codec:         codec,
		cfg:           cfg,
	}
	f.svc = service.NewAuthService(
		f.users, f.entitlements, f.codes, f.deviceTokens, f.refreshTokens, f.events,
		codec, f.workspace, cfg, zap.NewNop(),
	)
	return f
}

func testUser() domain.User {
	return domain.User{ID: 10, Email: "user@example.com", Name: "Test User"}
}

// grantFullAccess sets up the state /authorize requires: an active
// entitlement and at least one live device token.
func (f *fixture) grantFullAccess(t *testing.T, userID int64) {
	t.Helper()
	require.NoError(t, f.entitlements.Activate(context.Background(), userID, "license-basic"))
	require.NoError(t, f.deviceTokens.Create(context.Background(), domain.DeviceToken{
		Token:     "seed-device-token",
		UserID:    userID,
		ClientID:  testClientID,
		Scope:     service.ScopeAssistant,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

func pkceChallengeOf(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// rebuildWithConfig rebuilds the service after a fixture config tweak.
func rebuildWithConfig(f *fixture) *service.AuthService {
	return service.NewAuthService(
		f.users, f.entitlements, f.codes, f.deviceTokens, f.refreshTokens, f.events,
		f.codec, f.workspace, f.cfg, zap.NewNop(),
	)
}

func requireOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var oauthErr *service.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code)
}
