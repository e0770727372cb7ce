package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ EntitlementRepository  = (*PostgresEntitlementRepo)(nil)
	_ CodeRepository         = (*PostgresCodeRepo)(nil)
	_ DeviceTokenRepository  = (*PostgresDeviceTokenRepo)(nil)
	_ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
	_ WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)
)

// ErrNotFound is the repository-level not-found surface.
var ErrNotFound = pgx.ErrNoRows

// IsNotFound reports whether err is the not-found case.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(db *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserSQL = `SELECT id, email, name, COALESCE(assistant_link_ref, ''), COALESCE(linked_at, to_timestamp(0)), created_at, updated_at FROM users`

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, userID)
	return scanUser(row)
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+` WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *PostgresUserRepo) GetByAssistantLinkRef(ctx context.Context, ref string) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+` WHERE assistant_link_ref = $1`, ref)
	return scanUser(row)
}

func (r *PostgresUserRepo) LinkAssistantAccount(ctx context.Context, userID int64, ref string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET assistant_link_ref = $2, linked_at = now(), updated_at = now() WHERE id = $1`,
		userID, ref)
	if err != nil {
		return fmt.Errorf("link assistant account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AssistantLinkRef, &u.LinkedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, pgx.ErrNoRows
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// PostgresEntitlementRepo implements EntitlementRepository.
type PostgresEntitlementRepo struct {
	db *pgxpool.Pool
}

func NewPostgresEntitlementRepo(db *pgxpool.Pool) *PostgresEntitlementRepo {
	return &PostgresEntitlementRepo{db: db}
}

func (r *PostgresEntitlementRepo) GetByUser(ctx context.Context, userID int64) (domain.Entitlement, error) {
	var e domain.Entitlement
	err := r.db.QueryRow(ctx,
		`SELECT user_id, key, status, updated_at FROM entitlements WHERE user_id = $1`,
		userID).Scan(&e.UserID, &e.Key, &e.Status, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entitlement{}, pgx.ErrNoRows
		}
		return domain.Entitlement{}, fmt.Errorf("get entitlement: %w", err)
	}
	return e, nil
}

func (r *PostgresEntitlementRepo) Activate(ctx context.Context, userID int64, key string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entitlements (user_id, key, status, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO UPDATE SET key = EXCLUDED.key, status = EXCLUDED.status, updated_at = now()`,
		userID, key, domain.EntitlementActive)
	if err != nil {
		return fmt.Errorf("activate entitlement: %w", err)
	}
	return nil
}

func (r *PostgresEntitlementRepo) Deactivate(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE entitlements SET status = $2, updated_at = now() WHERE user_id = $1`,
		userID, domain.EntitlementInactive)
	if err != nil {
		return fmt.Errorf("deactivate entitlement: %w", err)
	}
	return nil
}

// PostgresCodeRepo implements CodeRepository.
type PostgresCodeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCodeRepo(db *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: db}
}

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO auth_codes (code, user_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, now())`,
		code.Code, code.UserID, code.ClientID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

func (r *PostgresCodeRepo) Get(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error) {
	var c domain.AuthorizationCode
	err := r.db.QueryRow(ctx,
		`SELECT code, user_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, created_at
		 FROM auth_codes WHERE code = $1 AND client_id = $2 AND redirect_uri = $3`,
		code, clientID, redirectURI).Scan(
		&c.Code, &c.UserID, &c.ClientID, &c.RedirectURI, &c.Scope,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &c.Used, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuthorizationCode{}, pgx.ErrNoRows
		}
		return domain.AuthorizationCode{}, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

// Consume flips used false-to-true in one conditional statement. The row
// count is the compare-and-set outcome: 1 for the winner, 0 for everyone
// arriving after.
func (r *PostgresCodeRepo) Consume(ctx context.Context, code string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE auth_codes SET used = TRUE WHERE code = $1 AND used = FALSE`,
		code)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PostgresDeviceTokenRepo implements DeviceTokenRepository.
type PostgresDeviceTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresDeviceTokenRepo(db *pgxpool.Pool) *PostgresDeviceTokenRepo {
	return &PostgresDeviceTokenRepo{db: db}
}

func (r *PostgresDeviceTokenRepo) Create(ctx context.Context, token domain.DeviceToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO device_tokens (token, user_id, client_id, scope, issued_at, expires_at, revoked)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		token.Token, token.UserID, token.ClientID, token.Scope, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert device token: %w", err)
	}
	return nil
}

func (r *PostgresDeviceTokenRepo) Get(ctx context.Context, token string) (domain.DeviceToken, error) {
	var t domain.DeviceToken
	err := r.db.QueryRow(ctx,
		`SELECT token, user_id, client_id, scope, issued_at, expires_at, revoked FROM device_tokens WHERE token = $1`,
		token).Scan(&t.Token, &t.UserID, &t.ClientID, &t.Scope, &t.IssuedAt, &t.ExpiresAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeviceToken{}, pgx.ErrNoRows
		}
		return domain.DeviceToken{}, fmt.Errorf("get device token: %w", err)
	}
	return t, nil
}

func (r *PostgresDeviceTokenRepo) HasLive(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM device_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2)`,
		userID, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check live device token: %w", err)
	}
	return exists, nil
}

// Revoke is idempotent: revoking an already-revoked or unknown token is a
// no-op success.
func (r *PostgresDeviceTokenRepo) Revoke(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE device_tokens SET revoked = TRUE WHERE token = $1 AND revoked = FALSE`,
		token)
	if err != nil {
		return fmt.Errorf("revoke device token: %w", err)
	}
	return nil
}

func (r *PostgresDeviceTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE device_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user device tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresDeviceTokenRepo) RevokeEverything(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE device_tokens SET revoked = TRUE WHERE revoked = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("revoke all device tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresRefreshTokenRepo implements RefreshTokenRepository.
type PostgresRefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshTokenRepo(db *pgxpool.Pool) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, client_id, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, now())`,
		token.Token, token.UserID, token.ClientID, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) Get(ctx context.Context, token string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRow(ctx,
		`SELECT token, user_id, client_id, expires_at, revoked, created_at FROM refresh_tokens WHERE token = $1`,
		token).Scan(&t.Token, &t.UserID, &t.ClientID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RefreshToken{}, pgx.ErrNoRows
		}
		return domain.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return t, nil
}

// Consume revokes the presented token conditionally; exactly one concurrent
// rotation observes true.
func (r *PostgresRefreshTokenRepo) Consume(ctx context.Context, token string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1 AND revoked = FALSE`,
		token)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresWebhookEventRepo implements WebhookEventRepository.
type PostgresWebhookEventRepo struct {
	db *pgxpool.Pool
}

func NewPostgresWebhookEventRepo(db *pgxpool.Pool) *PostgresWebhookEventRepo {
	return &PostgresWebhookEventRepo{db: db}
}

// MarkProcessed records the event id; a conflict means the event was already
// applied and the delivery must be a no-op.
func (r *PostgresWebhookEventRepo) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO webhook_events (event_id, processed_at) VALUES ($1, now()) ON CONFLICT (event_id) DO NOTHING`,
		eventID)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
