package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// LegacyClaims is what the pre-migration token format carries: no signature,
// no expiry, just an account reference and whatever the issuer of the day
// put next to it.
type LegacyClaims struct {
	UserID     int64  `json:"userId"`
	UserIDAlt  int64  `json:"user_id"`
	AccountRef string `json:"accountRef"`
	Email      string `json:"email"`
	CreatedAt  int64  `json:"createdAt"`
}

// Subject returns the embedded user reference, preferring the camelCase
// field the original issuer wrote.
func (c LegacyClaims) Subject() int64 {
	if c.UserID > 0 {
		return c.UserID
	}
	return c.UserIDAlt
}

// LooksLegacy reports whether raw plausibly is a legacy token: a base64
// JSON object carrying one of the known identity fields and no issuer
// claim. Signed tokens have three dot-separated sections and always carry
// iss, so they can never be routed here. This is a heuristic, not a format
// tag; other base64 JSON blobs with overlapping field names would match.
func LooksLegacy(raw string) bool {
	_, ok := DecodeLegacy(raw)
	return ok
}

// DecodeLegacy decodes a legacy token, accepting the base64 variants the
// old issuer produced over time.
func DecodeLegacy(raw string) (*LegacyClaims, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Count(raw, ".") == 2 {
		return nil, false
	}

	data, ok := decodeAnyBase64(raw)
	if !ok {
		return nil, false
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	if _, hasIssuer := probe["iss"]; hasIssuer {
		return nil, false
	}
	if _, ok := probe["userId"]; !ok {
		if _, ok := probe["user_id"]; !ok {
			if _, ok := probe["accountRef"]; !ok {
				return nil, false
			}
		}
	}

	var claims LegacyClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, false
	}
	if claims.Subject() <= 0 && claims.AccountRef == "" {
		return nil, false
	}
	return &claims, true
}

func decodeAnyBase64(raw string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(raw); err == nil {
			return data, true
		}
	}
	return nil, false
}
