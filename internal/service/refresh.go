package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
)

// Rotate exchanges a refresh token for a fresh signed session token and a
// new refresh token, revoking the presented one. Single-use: the store-level
// conditional revoke decides concurrent rotations.
//
// The presented token is revoked before the replacement is persisted, so a
// crash between the two steps strands the identity without a refresh token
// until it re-links. Reordering would instead leave old and new both valid
// briefly, which is the worse failure for a credential this long-lived.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Rotate")
	defer span.End()

	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return nil, newOAuthError(ErrCodeInvalidRequest, "refresh_token is required.", http.StatusBadRequest)
	}

	record, err := s.refreshTokens.Get(ctx, raw)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidGrant, "Unknown refresh token.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return nil, newOAuthError(ErrCodeInvalidGrant, "Refresh token is revoked or expired.", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidGrant, "Refresh token references an unknown user.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	won, err := s.refreshTokens.Consume(ctx, raw)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !won {
		return nil, newOAuthError(ErrCodeInvalidGrant, "Refresh token already rotated.", http.StatusUnauthorized)
	}

	access, err := s.codec.Sign(user.ID, user.Email, ScopeAssistant, s.cfg.SessionTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	next, err := secureRandomString(s.cfg.OpaqueTokenBytes)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.refreshTokens.Create(ctx, domain.RefreshToken{
		Token:     next,
		UserID:    user.ID,
		ClientID:  record.ClientID,
		ExpiresAt: s.now().Add(s.cfg.RefreshTokenTTL),
	}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	s.audit("refresh.rotated", zap.Int64("user_id", user.ID))
	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.SessionTokenTTL.Seconds()),
		RefreshToken: next,
	}, nil
}
