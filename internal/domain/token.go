package domain

import "time"

// AuthorizationCode models short-lived single-use authorization codes. The
// only mutation it ever sees is the used flag flipping false to true, once.
type AuthorizationCode struct {
	Code                string
	UserID              int64
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// Expired reports whether the code is past its lifetime at the given instant.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DeviceToken is an opaque access token held by the assistant device. Valid
// only by virtue of its row; revocable by flagging that row.
type DeviceToken struct {
	Token     string
	UserID    int64
	ClientID  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Live reports whether the token is unrevoked and unexpired at now.
func (t DeviceToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// RefreshToken is a single-use opaque credential; every successful rotation
// revokes the presented row and inserts a new one.
type RefreshToken struct {
	Token     string
	UserID    int64
	ClientID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
