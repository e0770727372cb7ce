package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RevokeToken revokes a single opaque device token. Idempotent: revoking an
// already-revoked or unknown token succeeds.
//
// Stateless session tokens are not revocable here; they stay valid until
// natural expiry. Accepted tradeoff of the stateless format.
func (s *AuthService) RevokeToken(ctx context.Context, tokenValue string) error {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeToken")
	defer span.End()

	if err := s.deviceTokens.Revoke(ctx, tokenValue); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke token: %w", err)
	}
	s.audit("token.revoked")
	return nil
}

// RevokeAll revokes every live device and refresh token for the user. Safe
// with zero matching rows and safe to repeat; concurrent calls commute.
func (s *AuthService) RevokeAll(ctx context.Context, userID int64) error {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeAll")
	defer span.End()

	devices, err := s.deviceTokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke user device tokens: %w", err)
	}
	refreshes, err := s.refreshTokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}

	s.audit("token.revoked_all",
		zap.Int64("user_id", userID),
		zap.Int64("device_tokens", devices),
		zap.Int64("refresh_tokens", refreshes),
	)
	return nil
}

// RevokeEverything revokes every live device token in the store. Privileged;
// callers must pass VerifyAdminKey first.
func (s *AuthService) RevokeEverything(ctx context.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeEverything")
	defer span.End()

	count, err := s.deviceTokens.RevokeEverything(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("revoke everything: %w", err)
	}

	s.audit("token.revoked_everything", zap.Int64("count", count))
	return count, nil
}

// VerifyAdminKey checks the presented credential against the configured
// bcrypt hash gating the privileged revoke surface.
func (s *AuthService) VerifyAdminKey(key string) bool {
	if s.cfg.AdminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminKeyHash), []byte(key)) == nil
}
