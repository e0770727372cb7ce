package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/config"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/http/middleware"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/identity"
	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
)

// AuthHandler exposes the OAuth linking endpoints.
type AuthHandler struct {
	Auth     *service.AuthService
	Identity *identity.Resolver
	Cfg      config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, resolver *identity.Resolver, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, Identity: resolver, Cfg: cfg}
}

// Authorize handles GET /authorize: the entry point of the linking flow.
// Protocol errors answer JSON; unmet preconditions redirect the browser to
// an actionable page instead.
func (h *AuthHandler) Authorize(c *gin.Context) {
	var req struct {
		ResponseType        string `form:"response_type"`
		ClientID            string `form:"client_id"`
		RedirectURI         string `form:"redirect_uri"`
		Scope               string `form:"scope"`
		State               string `form:"state"`
		CodeChallenge       string `form:"code_challenge"`
		CodeChallengeMethod string `form:"code_challenge_method"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "Invalid authorize request."})
		return
	}

	in := service.IssueCodeInput{
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}

	// Protocol checks first: a malformed linking request answers its OAuth
	// error even when nobody is signed in yet.
	if err := h.Auth.ValidateAuthorizeRequest(in); err != nil {
		respondServiceError(c, err)
		return
	}

	userID, authenticated := h.Identity.Resolve(c.Request)
	if !authenticated {
		c.Redirect(http.StatusFound, h.continueURL(h.Cfg.SignInURL, c.Request.URL.RawQuery))
		return
	}

	code, err := h.Auth.IssueCode(c.Request.Context(), userID, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBillingRequired):
			c.Redirect(http.StatusFound, h.continueURL(h.Cfg.BillingURL, c.Request.URL.RawQuery))
		case errors.Is(err, domain.ErrConnectionRequired):
			c.Redirect(http.StatusFound, h.continueURL(h.Cfg.ConnectURL, c.Request.URL.RawQuery))
		default:
			respondServiceError(c, err)
		}
		return
	}

	redirect, err := url.Parse(strings.TrimSpace(req.RedirectURI))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "redirect_uri is not a valid URL."})
		return
	}
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}

// Token handles POST /token grant exchanges.
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" json:"grant_type" binding:"required"`
		Code         string `form:"code" json:"code"`
		RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
		ClientID     string `form:"client_id" json:"client_id"`
		CodeVerifier string `form:"code_verifier" json:"code_verifier"`
		RefreshToken string `form:"refresh_token" json:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "Invalid token request."})
		return
	}

	var (
		resp *service.TokenResponse
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.GrantType)) {
	case "authorization_code":
		resp, err = h.Auth.Exchange(c.Request.Context(), service.ExchangeInput{
			Code:         req.Code,
			ClientID:     req.ClientID,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
		})
	case "refresh_token":
		resp, err = h.Auth.Rotate(c.Request.Context(), req.RefreshToken)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeUnsupportedGrantType, "error_description": "Unsupported grant type."})
		return
	}

	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Introspect handles POST /introspect: resolves the bearer credential from
// the Authorization header through the format cascade.
func (h *AuthHandler) Introspect(c *gin.Context) {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrCodeInvalidToken, "error_description": "Authorization header missing or invalid."})
		return
	}

	result, err := h.Auth.Introspect(c.Request.Context(), raw)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	payload := gin.H{
		"active":     result.Active,
		"user_id":    result.UserID,
		"email":      result.Email,
		"scope":      result.Scope,
		"token_type": result.TokenType,
	}
	if result.ExpiresAt != 0 {
		payload["exp"] = result.ExpiresAt
	}
	if result.IssuedAt != 0 {
		payload["iat"] = result.IssuedAt
	}
	c.JSON(http.StatusOK, payload)
}

// Revoke handles POST /revoke. Privileged: gated by the admin credential.
func (h *AuthHandler) Revoke(c *gin.Context) {
	key, ok := middleware.BearerToken(c)
	if !ok || !h.Auth.VerifyAdminKey(key) {
		c.JSON(http.StatusForbidden, gin.H{"error": service.ErrCodeAccessDenied, "error_description": "Admin credential required."})
		return
	}

	var req struct {
		Token  string `form:"token" json:"token"`
		UserID int64  `form:"user_id" json:"user_id"`
		All    bool   `form:"all" json:"all"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "Invalid revoke request."})
		return
	}

	switch {
	case req.All:
		count, err := h.Auth.RevokeEverything(c.Request.Context())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "All tokens revoked.", "count": count})
	case req.UserID > 0:
		if err := h.Auth.RevokeAll(c.Request.Context(), req.UserID); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "User tokens revoked."})
	case strings.TrimSpace(req.Token) != "":
		if err := h.Auth.RevokeToken(c.Request.Context(), req.Token); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token revoked."})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "token, user_id, or all is required."})
	}
}

// Refresh handles POST /refresh: refresh-token rotation.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `form:"refresh_token" json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCodeInvalidRequest, "error_description": "refresh_token is required."})
		return
	}

	resp, err := h.Auth.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UserInfo handles GET /userinfo for any resolvable bearer credential.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	result, ok := middleware.GetIntrospection(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrCodeInvalidToken, "error_description": "Token could not be verified."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    result.UserID,
		"email":      result.Email,
		"scope":      result.Scope,
		"token_type": result.TokenType,
	})
}

// Healthz reports liveness.
func (h *AuthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) continueURL(base, rawQuery string) string {
	if rawQuery == "" {
		return base
	}
	if strings.Contains(base, "?") {
		return base + "&" + rawQuery
	}
	return base + "?" + rawQuery
}

func respondServiceError(c *gin.Context, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	zap.L().Error("service failure", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": service.ErrCodeServerError, "error_description": "Internal server error."})
}
