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

// IssueCodeInput carries the raw /authorize parameters. The caller identity
// is resolved by the handler and passed separately.
type IssueCodeInput struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorizeRequest runs the protocol checks on a linking request:
// response_type, client identity, redirect allow-list, challenge method.
// These come before any caller authentication, so an unauthenticated request
// with a bad client still answers invalid_client rather than a sign-in
// redirect.
func (s *AuthService) ValidateAuthorizeRequest(in IssueCodeInput) error {
	responseType := strings.TrimSpace(in.ResponseType)
	if responseType == "" {
		responseType = "code"
	}
	if !strings.EqualFold(responseType, "code") {
		return newOAuthError(ErrCodeUnsupportedResponseType, "Only response_type=code is supported.", http.StatusBadRequest)
	}

	if strings.TrimSpace(in.ClientID) != s.cfg.ClientID {
		return newOAuthError(ErrCodeInvalidClient, "Unknown client.", http.StatusBadRequest)
	}

	if !s.redirectURIAllowed(strings.TrimSpace(in.RedirectURI)) {
		return newOAuthError(ErrCodeInvalidRequest, "redirect_uri is not on the allow-list.", http.StatusBadRequest)
	}

	if method := strings.ToUpper(strings.TrimSpace(in.CodeChallengeMethod)); method != "" && method != "S256" && method != "PLAIN" {
		return newOAuthError(ErrCodeInvalidRequest, "code_challenge_method must be S256 or plain.", http.StatusBadRequest)
	}

	return nil
}

// IssueCode runs the linking-request validation chain and mints a one-time
// authorization code bound to the PKCE challenge when one is supplied.
//
// Precondition failures surface as domain sentinels (billing, connection) so
// the handler can redirect the browser; everything else is an OAuthError.
func (s *AuthService) IssueCode(ctx context.Context, userID int64, in IssueCodeInput) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.IssueCode")
	defer span.End()

	if err := s.ValidateAuthorizeRequest(in); err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		if repository.IsNotFound(err) {
			return "", newOAuthError(ErrCodeUserNotFound, "Identity not linked to a user.", http.StatusBadRequest)
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if !s.cfg.SkipLicenseCheck {
		// An active entitlement alone is not enough: it is purchased per
		// device token, so a live token must exist too. This guards
		// against partially applied billing webhooks.
		ent, err := s.entitlements.GetByUser(ctx, user.ID)
		if err != nil && !repository.IsNotFound(err) {
			span.RecordError(err)
			return "", fmt.Errorf("load entitlement: %w", err)
		}
		if err != nil || !ent.Active() {
			return "", domain.ErrBillingRequired
		}
		live, err := s.deviceTokens.HasLive(ctx, user.ID, s.now())
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("check device tokens: %w", err)
		}
		if !live {
			return "", domain.ErrBillingRequired
		}
	}

	connected, err := s.workspace.Connected(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("check workspace connection: %w", err)
	}
	if !connected {
		return "", domain.ErrConnectionRequired
	}

	code, err := secureRandomString(32)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generate code: %w", err)
	}

	scope := strings.TrimSpace(in.Scope)
	if scope == "" {
		scope = ScopeAssistant
	}

	record := domain.AuthorizationCode{
		Code:                code,
		UserID:              user.ID,
		ClientID:            s.cfg.ClientID,
		RedirectURI:         strings.TrimSpace(in.RedirectURI),
		Scope:               scope,
		CodeChallenge:       strings.TrimSpace(in.CodeChallenge),
		CodeChallengeMethod: strings.ToUpper(strings.TrimSpace(in.CodeChallengeMethod)),
		ExpiresAt:           s.now().Add(s.cfg.AuthCodeTTL),
	}
	if err := s.codes.Create(ctx, record); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("persist code: %w", err)
	}

	s.audit("code.issued", zap.Int64("user_id", user.ID), zap.String("client_id", record.ClientID))
	return code, nil
}

func (s *AuthService) redirectURIAllowed(redirectURI string) bool {
	if redirectURI == "" {
		return false
	}
	for _, prefix := range s.cfg.RedirectURIPrefixes {
		if strings.HasPrefix(redirectURI, prefix) {
			return true
		}
	}
	return false
}
