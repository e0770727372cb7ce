package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/repository"
)

// ExchangeInput is the authorization_code grant request.
type ExchangeInput struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// Exchange redeems an authorization code exactly once for an opaque device
// token and a refresh token. Under concurrent redemption of the same code
// only one caller succeeds; the rest get invalid_grant.
func (s *AuthService) Exchange(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Exchange")
	defer span.End()

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, newOAuthError(ErrCodeInvalidRequest, "code is required.", http.StatusBadRequest)
	}

	// The lookup is bound to client_id and redirect_uri so a code can never
	// be redeemed under a different binding than it was issued for.
	record, err := s.codes.Get(ctx, code, strings.TrimSpace(in.ClientID), strings.TrimSpace(in.RedirectURI))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newOAuthError(ErrCodeInvalidGrant, "Unknown authorization code.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load code: %w", err)
	}

	if record.Expired(s.now()) {
		return nil, newOAuthError(ErrCodeInvalidGrant, "Authorization code expired.", http.StatusBadRequest)
	}
	if record.Used {
		return nil, newOAuthError(ErrCodeInvalidGrant, "Authorization code already used.", http.StatusBadRequest)
	}

	if record.CodeChallenge != "" {
		verifier := strings.TrimSpace(in.CodeVerifier)
		if verifier == "" {
			return nil, newOAuthError(ErrCodeInvalidGrant, "code_verifier is required.", http.StatusBadRequest)
		}
		candidate := pkceChallenge(verifier)
		if record.CodeChallengeMethod == "PLAIN" {
			candidate = verifier
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(record.CodeChallenge)) != 1 {
			return nil, newOAuthError(ErrCodeInvalidGrant, "PKCE verification failed.", http.StatusBadRequest)
		}
	}

	// Single-winner transition: the conditional update decides the race,
	// not this process.
	won, err := s.codes.Consume(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if !won {
		return nil, newOAuthError(ErrCodeInvalidGrant, "Authorization code already used.", http.StatusBadRequest)
	}

	resp, err := s.mintDeviceTokens(ctx, record.UserID, record.ClientID, record.Scope)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.users.LinkAssistantAccount(ctx, record.UserID, record.ClientID); err != nil {
		// The token is already valid; losing the link annotation is not
		// worth failing the grant over.
		s.log().Warn("record assistant link", zap.Int64("user_id", record.UserID), zap.Error(err))
	}

	s.audit("code.exchanged", zap.Int64("user_id", record.UserID), zap.String("client_id", record.ClientID))
	return resp, nil
}

func (s *AuthService) mintDeviceTokens(ctx context.Context, userID int64, clientID, scope string) (*TokenResponse, error) {
	access, err := secureRandomString(s.cfg.OpaqueTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	now := s.now()
	if err := s.deviceTokens.Create(ctx, domain.DeviceToken{
		Token:     access,
		UserID:    userID,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.DeviceTokenTTL),
	}); err != nil {
		return nil, fmt.Errorf("persist access token: %w", err)
	}

	refresh, err := secureRandomString(s.cfg.OpaqueTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.refreshTokens.Create(ctx, domain.RefreshToken{
		Token:     refresh,
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.DeviceTokenTTL.Seconds()),
		RefreshToken: refresh,
	}, nil
}
