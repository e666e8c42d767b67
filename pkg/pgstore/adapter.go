package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// Adapter implements the full storage contract on a pgx connection pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// NewAdapter wraps a connected pool.
func NewAdapter(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// --- users ---

func (a *Adapter) CreateUser(ctx context.Context, user *store.User) error {
	metadata, err := marshalMetadata(user.Metadata)
	if err != nil {
		return err
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, verified, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.Name, user.Verified, metadata, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return a.scanUser(a.pool.QueryRow(ctx, `
		SELECT id, email, name, verified, metadata, created_at, updated_at
		FROM users WHERE id = $1`, id))
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return a.scanUser(a.pool.QueryRow(ctx, `
		SELECT id, email, name, verified, metadata, created_at, updated_at
		FROM users WHERE email = $1`, email))
}

func (a *Adapter) scanUser(row pgx.Row) (*store.User, error) {
	var user store.User
	var metadata []byte
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Verified, &metadata, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
		}
	}
	return &user, nil
}

func (a *Adapter) UpdateUser(ctx context.Context, user *store.User) error {
	metadata, err := marshalMetadata(user.Metadata)
	if err != nil {
		return err
	}

	tag, err := a.pool.Exec(ctx, `
		UPDATE users SET email = $2, name = $3, verified = $4, metadata = $5, updated_at = $6
		WHERE id = $1`,
		user.ID, user.Email, user.Name, user.Verified, metadata, user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Sessions turn terminal; accounts and memberships cascade with the row.
	if _, err := tx.Exec(ctx, `UPDATE sessions SET revoked = TRUE WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return tx.Commit(ctx)
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return data, nil
}

// --- accounts ---

const accountColumns = `id, user_id, provider, provider_account_id, password_hash,
	access_token, refresh_token, token_expires_at, credential, created_at`

func (a *Adapter) CreateAccount(ctx context.Context, account *store.Account) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.UserID, account.Provider, account.ProviderAccountID,
		account.PasswordHash, account.AccessToken, account.RefreshToken,
		nullableTime(account.TokenExpiresAt), account.Credential, account.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (a *Adapter) GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (*store.Account, error) {
	return scanAccount(a.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE provider = $1 AND provider_account_id = $2`, provider, providerAccountID))
}

func (a *Adapter) GetAccountByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*store.Account, error) {
	return scanAccount(a.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1 AND provider = $2
		ORDER BY created_at LIMIT 1`, userID, provider))
}

func (a *Adapter) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*store.Account, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*store.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*store.Account, error) {
	var account store.Account
	var tokenExpiresAt *time.Time
	err := row.Scan(&account.ID, &account.UserID, &account.Provider, &account.ProviderAccountID,
		&account.PasswordHash, &account.AccessToken, &account.RefreshToken,
		&tokenExpiresAt, &account.Credential, &account.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if tokenExpiresAt != nil {
		account.TokenExpiresAt = *tokenExpiresAt
	}
	return &account, nil
}

func (a *Adapter) UpdateAccount(ctx context.Context, account *store.Account) error {
	tag, err := a.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, access_token = $3, refresh_token = $4,
			token_expires_at = $5, credential = $6
		WHERE id = $1`,
		account.ID, account.PasswordHash, account.AccessToken, account.RefreshToken,
		nullableTime(account.TokenExpiresAt), account.Credential,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- sessions ---

const sessionColumns = `token, id, user_id, rotations, revoked, created_at, expires_at`

func (a *Adapter) CreateSession(ctx context.Context, session *store.Session) error {
	// A dead session at the same token gives way to the new one.
	tag, err := a.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO UPDATE SET
			id = EXCLUDED.id, user_id = EXCLUDED.user_id, rotations = EXCLUDED.rotations,
			revoked = EXCLUDED.revoked, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE sessions.revoked OR sessions.expires_at <= now()`,
		session.Token, session.ID, session.UserID, session.Rotations,
		session.Revoked, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (a *Adapter) GetSessionByToken(ctx context.Context, token string) (*store.Session, error) {
	return scanSession(a.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token))
}

func (a *Adapter) RotateSession(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*store.Session, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The conditional UPDATE is the whole race: of N concurrent rotations
	// exactly one matches the live row, the rest see zero rows.
	var session store.Session
	err = tx.QueryRow(ctx, `
		UPDATE sessions SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > now()
		RETURNING id, user_id, rotations, created_at`, oldToken,
	).Scan(&session.ID, &session.UserID, &session.Rotations, &session.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	session.Token = newToken
	session.Rotations++
	session.Revoked = false
	session.ExpiresAt = expiresAt

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		session.Token, session.ID, session.UserID, session.Rotations,
		session.CreatedAt, session.ExpiresAt,
	); err != nil {
		return nil, fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return &session, nil
}

func (a *Adapter) ExtendSession(ctx context.Context, token string, expiresAt time.Time) (*store.Session, error) {
	session, err := scanSession(a.pool.QueryRow(ctx, `
		UPDATE sessions SET expires_at = $2
		WHERE token = $1 AND NOT revoked AND expires_at > now()
		RETURNING `+sessionColumns, token, expiresAt))
	if err != nil {
		return nil, err
	}
	return session, nil
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var session store.Session
	err := row.Scan(&session.Token, &session.ID, &session.UserID, &session.Rotations,
		&session.Revoked, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

func (a *Adapter) RevokeSession(ctx context.Context, token string) error {
	if _, err := a.pool.Exec(ctx, `
		UPDATE sessions SET revoked = TRUE WHERE token = $1`, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (a *Adapter) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	if _, err := a.pool.Exec(ctx, `
		UPDATE sessions SET revoked = TRUE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, `
		DELETE FROM sessions WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}

// --- verifications ---

func (a *Adapter) CreateVerification(ctx context.Context, verification *store.Verification) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO verifications (value, id, identifier, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		verification.Value, verification.ID, verification.Identifier,
		verification.Payload, verification.ExpiresAt, verification.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (a *Adapter) ConsumeVerification(ctx context.Context, value string) (*store.Verification, error) {
	var verification store.Verification
	err := a.pool.QueryRow(ctx, `
		DELETE FROM verifications WHERE value = $1
		RETURNING value, id, identifier, payload, expires_at, created_at`, value,
	).Scan(&verification.Value, &verification.ID, &verification.Identifier,
		&verification.Payload, &verification.ExpiresAt, &verification.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("consume verification: %w", err)
	}
	return &verification, nil
}

func (a *Adapter) DeleteExpiredVerifications(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, `
		DELETE FROM verifications WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("delete expired verifications: %w", err)
	}
	return nil
}

// --- organizations ---

func (a *Adapter) CreateOrganization(ctx context.Context, org *store.Organization) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.Slug, org.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (a *Adapter) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	var org store.Organization
	err := a.pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	return &org, nil
}

func (a *Adapter) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *Adapter) CreateMember(ctx context.Context, member *store.Member) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO members (id, org_id, user_id, roles, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		member.ID, member.OrgID, member.UserID, member.Roles, member.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (a *Adapter) GetMember(ctx context.Context, userID, orgID uuid.UUID) (*store.Member, error) {
	var member store.Member
	err := a.pool.QueryRow(ctx, `
		SELECT id, org_id, user_id, roles, created_at FROM members
		WHERE user_id = $1 AND org_id = $2`, userID, orgID,
	).Scan(&member.ID, &member.OrgID, &member.UserID, &member.Roles, &member.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return &member, nil
}

func (a *Adapter) UpdateMember(ctx context.Context, member *store.Member) error {
	tag, err := a.pool.Exec(ctx, `
		UPDATE members SET roles = $3 WHERE org_id = $1 AND user_id = $2`,
		member.OrgID, member.UserID, member.Roles,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteMember(ctx context.Context, userID, orgID uuid.UUID) error {
	tag, err := a.pool.Exec(ctx, `
		DELETE FROM members WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *Adapter) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*store.Member, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, org_id, user_id, roles, created_at FROM members
		WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*store.Member
	for rows.Next() {
		var member store.Member
		if err := rows.Scan(&member.ID, &member.OrgID, &member.UserID, &member.Roles, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, &member)
	}
	return members, rows.Err()
}

var _ store.Adapter = (*Adapter)(nil)
