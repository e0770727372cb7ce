package identity

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/token"
)

// Session cookie written by the browser sign-in flow.
const SessionCookieName = "al_session"

// Provider resolves an identity from an external identity-provider session.
// It is the fallback when no signed session token accompanies the request.
type Provider interface {
	ResolveSession(r *http.Request) (int64, bool)
}

// Resolver determines the authenticated caller of a browser request: first a
// signed session token (bearer header or session cookie), then the external
// identity-provider session.
type Resolver struct {
	codec    *token.Codec
	provider Provider
	logger   *zap.Logger
}

// NewResolver builds a resolver. provider may be nil when no external IdP
// session source is configured.
func NewResolver(codec *token.Codec, provider Provider, logger *zap.Logger) *Resolver {
	return &Resolver{codec: codec, provider: provider, logger: logger}
}

// Resolve returns the caller's user id, or false when the request carries no
// usable credential.
func (r *Resolver) Resolve(req *http.Request) (int64, bool) {
	if raw := sessionToken(req); raw != "" {
		std, _, err := r.codec.Verify(raw)
		if err != nil {
			r.logger.Debug("session token rejected", zap.Error(err))
		} else if id, idErr := token.Subject(std); idErr == nil {
			return id, true
		}
	}

	if r.provider != nil {
		if id, ok := r.provider.ResolveSession(req); ok {
			return id, true
		}
	}

	return 0, false
}

func sessionToken(req *http.Request) string {
	if header := req.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := req.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
