package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
)

// Token type labels reported by introspection.
const (
	TokenTypeLegacy  = "legacy"
	TokenTypeDevice  = "device"
	TokenTypeSession = "session"
)

// Introspection is the resolved state of a bearer credential.
type Introspection struct {
	Active            bool
	UserID            int64
	Email             string
	Scope             string
	TokenType         string
	IssuedAt          int64
	ExpiresAt         int64
	EntitlementActive bool
}

// Introspect resolves a bearer string through the three-format cascade:
// legacy blob, opaque device token, signed session token. Each stage either
// claims the credential or passes it on; a claimed-but-invalid credential
// terminates the cascade. Entitlement is always recomputed from the store;
// embedded claims are advisory only.
func (s *AuthService) Introspect(ctx context.Context, raw string) (*Introspection, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Introspect")
	defer span.End()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newOAuthError(ErrCodeInvalidToken, "Bearer token is required.", http.StatusUnauthorized)
	}

	if claims, ok := token.DecodeLegacy(raw); ok {
		return s.introspectLegacy(ctx, claims)
	}

	device, err := s.deviceTokens.Get(ctx, raw)
	if err == nil {
		return s.introspectDevice(ctx, device)
	}
	if !repository.IsNotFound(err) {
		span.RecordError(err)
		return nil, fmt.Errorf("lookup device token: %w", err)
	}

	if std, custom, err := s.codec.Verify(raw); err == nil {
		return s.introspectSession(ctx, std, custom)
	}

	return nil, newOAuthError(ErrCodeInvalidToken, "Token could not be verified.", http.StatusUnauthorized)
}

func (s *AuthService) introspectLegacy(ctx context.Context, claims *token.LegacyClaims) (*Introspection, error) {
	// No signature to check in this format; validity is whether the
	// embedded reference still resolves to a user. Oldest blobs carry only
	// the assistant account ref, so those resolve through the link column.
	var (
		user domain.User
		err  error
	)
	if userID := claims.Subject(); userID > 0 {
		user, err = s.users.GetByID(ctx, userID)
	} else {
		user, err = s.users.GetByAssistantLinkRef(ctx, claims.AccountRef)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidToken, "Token references an unknown user.", http.StatusUnauthorized)
		}
		return nil, fmt.Errorf("resolve legacy identity: %w", err)
	}

	entActive, err := s.entitlementActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Introspection{
		Active:            true,
		UserID:            user.ID,
		Email:             user.Email,
		Scope:             ScopeLegacy,
		TokenType:         TokenTypeLegacy,
		EntitlementActive: entActive,
	}, nil
}

func (s *AuthService) introspectDevice(ctx context.Context, device domain.DeviceToken) (*Introspection, error) {
	if !device.Live(s.now()) {
		return nil, newOAuthError(ErrCodeInvalidToken, "Token is revoked or expired.", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, device.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidToken, "Token references an unknown user.", http.StatusUnauthorized)
		}
		return nil, fmt.Errorf("resolve device identity: %w", err)
	}

	entActive, err := s.entitlementActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Introspection{
		Active:            true,
		UserID:            user.ID,
		Email:             user.Email,
		Scope:             device.Scope,
		TokenType:         TokenTypeDevice,
		IssuedAt:          device.IssuedAt.Unix(),
		ExpiresAt:         device.ExpiresAt.Unix(),
		EntitlementActive: entActive,
	}, nil
}

func (s *AuthService) introspectSession(ctx context.Context, std *jwt.Claims, custom *token.SessionClaims) (*Introspection, error) {
	userID, err := token.Subject(std)
	if err != nil {
		return nil, newOAuthError(ErrCodeInvalidToken, "Token subject is invalid.", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidToken, "Token references an unknown user.", http.StatusUnauthorized)
		}
		return nil, fmt.Errorf("resolve session identity: %w", err)
	}

	entActive, err := s.entitlementActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// Stateless tokens have no store row, so there is nothing to consult
	// for per-token revocation. Signed device tokens from before the opaque
	// migration do have rows and were already handled one stage earlier.
	result := &Introspection{
		Active:            true,
		UserID:            user.ID,
		Email:             user.Email,
		Scope:             custom.Scope,
		TokenType:         TokenTypeSession,
		EntitlementActive: entActive,
	}
	if std.IssuedAt != nil {
		result.IssuedAt = std.IssuedAt.Time().Unix()
	}
	if std.Expiry != nil {
		result.ExpiresAt = std.Expiry.Time().Unix()
	}
	return result, nil
}

func (s *AuthService) entitlementActive(ctx context.Context, userID int64) (bool, error) {
	ent, err := s.entitlements.GetByUser(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("load entitlement: %w", err)
	}
	return ent.Active(), nil
}
