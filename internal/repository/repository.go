package repository

import (
	"context"
	"time"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
)

// UserRepository reads the externally-owned user store. The single write this
// service performs is recording the assistant account link.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByAssistantLinkRef(ctx context.Context, ref string) (domain.User, error)
	LinkAssistantAccount(ctx context.Context, userID int64, ref string) error
}

// EntitlementRepository reads and applies billing-driven entitlement state.
type EntitlementRepository interface {
	GetByUser(ctx context.Context, userID int64) (domain.Entitlement, error)
	Activate(ctx context.Context, userID int64, key string) error
	Deactivate(ctx context.Context, userID int64) error
}

// CodeRepository persists authorization codes. Consume is the single-winner
// transition: it succeeds for exactly one caller per code.
type CodeRepository interface {
	Create(ctx context.Context, code domain.AuthorizationCode) error
	Get(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error)
	Consume(ctx context.Context, code string) (bool, error)
}

// DeviceTokenRepository persists opaque access tokens.
type DeviceTokenRepository interface {
	Create(ctx context.Context, token domain.DeviceToken) error
	Get(ctx context.Context, token string) (domain.DeviceToken, error)
	HasLive(ctx context.Context, userID int64, now time.Time) (bool, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	RevokeEverything(ctx context.Context) (int64, error)
}

// RefreshTokenRepository persists refresh tokens. Consume revokes the row
// conditionally so concurrent rotations have exactly one winner.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	Get(ctx context.Context, token string) (domain.RefreshToken, error)
	Consume(ctx context.Context, token string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}

// WebhookEventRepository deduplicates billing webhook deliveries.
// MarkProcessed returns false when the event id was already recorded.
type WebhookEventRepository interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}
