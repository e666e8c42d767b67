package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ensure MemoryAdapter implements the full contract.
var _ Adapter = (*MemoryAdapter)(nil)

// MemoryAdapter implements Adapter using in-memory maps. It is safe for
// concurrent use and is the default backend for tests and local development.
type MemoryAdapter struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*User
	usersByEmail map[string]uuid.UUID

	accounts        map[uuid.UUID]*Account
	accountsByProv  map[string]uuid.UUID // provider + "\x00" + providerAccountID
	sessions        map[string]*Session  // by token
	verifications   map[string]*Verification
	organizations   map[uuid.UUID]*Organization
	members         map[uuid.UUID]*Member
	membersByOrgUsr map[string]uuid.UUID // orgID + "\x00" + userID

	ticker *time.Ticker
	done   chan struct{}
}

// NewMemoryAdapter creates an in-memory adapter. If cleanupInterval is
// positive, a background goroutine removes expired sessions and verifications
// on that interval; call Close to stop it.
func NewMemoryAdapter(cleanupInterval time.Duration) *MemoryAdapter {
	a := &MemoryAdapter{
		users:           make(map[uuid.UUID]*User),
		usersByEmail:    make(map[string]uuid.UUID),
		accounts:        make(map[uuid.UUID]*Account),
		accountsByProv:  make(map[string]uuid.UUID),
		sessions:        make(map[string]*Session),
		verifications:   make(map[string]*Verification),
		organizations:   make(map[uuid.UUID]*Organization),
		members:         make(map[uuid.UUID]*Member),
		membersByOrgUsr: make(map[string]uuid.UUID),
		done:            make(chan struct{}),
	}

	if cleanupInterval > 0 {
		a.ticker = time.NewTicker(cleanupInterval)
		go a.cleanupLoop()
	}

	return a
}

// Close stops the cleanup goroutine.
func (a *MemoryAdapter) Close() error {
	if a.ticker != nil {
		a.ticker.Stop()
		close(a.done)
	}
	return nil
}

func (a *MemoryAdapter) cleanupLoop() {
	for {
		select {
		case <-a.ticker.C:
			_ = a.DeleteExpiredSessions(context.Background())
			_ = a.DeleteExpiredVerifications(context.Background())
		case <-a.done:
			return
		}
	}
}

func provKey(provider, providerAccountID string) string {
	return provider + "\x00" + providerAccountID
}

func memberKey(orgID, userID uuid.UUID) string {
	return orgID.String() + "\x00" + userID.String()
}

func copyUser(u *User) *User {
	c := *u
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		maps.Copy(c.Metadata, u.Metadata)
	}
	return &c
}

func copyAccount(acc *Account) *Account {
	c := *acc
	c.PasswordHash = slices.Clone(acc.PasswordHash)
	c.Credential = slices.Clone(acc.Credential)
	return &c
}

func copySession(s *Session) *Session {
	c := *s
	return &c
}

func copyVerification(v *Verification) *Verification {
	c := *v
	c.Payload = slices.Clone(v.Payload)
	return &c
}

func copyMember(m *Member) *Member {
	c := *m
	c.Roles = slices.Clone(m.Roles)
	return &c
}

// CreateUser stores a new user.
func (a *MemoryAdapter) CreateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil || user.Email == "" {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := a.usersByEmail[email]; exists {
		return ErrConflict
	}
	if _, exists := a.users[user.ID]; exists {
		return ErrConflict
	}

	a.users[user.ID] = copyUser(user)
	a.usersByEmail[email] = user.ID
	return nil
}

// GetUserByID retrieves a user by ID.
func (a *MemoryAdapter) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	user, exists := a.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (a *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, exists := a.usersByEmail[strings.ToLower(email)]
	if !exists {
		return nil, ErrNotFound
	}
	return copyUser(a.users[id]), nil
}

// UpdateUser replaces an existing user record.
func (a *MemoryAdapter) UpdateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, exists := a.users[user.ID]
	if !exists {
		return ErrNotFound
	}

	newEmail := strings.ToLower(user.Email)
	oldEmail := strings.ToLower(existing.Email)
	if newEmail != oldEmail {
		if _, taken := a.usersByEmail[newEmail]; taken {
			return ErrConflict
		}
		delete(a.usersByEmail, oldEmail)
		a.usersByEmail[newEmail] = user.ID
	}

	a.users[user.ID] = copyUser(user)
	return nil
}

// DeleteUser removes the user, its accounts and member records, and revokes
// its sessions.
func (a *MemoryAdapter) DeleteUser(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, exists := a.users[id]
	if !exists {
		return ErrNotFound
	}

	delete(a.usersByEmail, strings.ToLower(user.Email))
	delete(a.users, id)

	for accID, acc := range a.accounts {
		if acc.UserID == id {
			delete(a.accountsByProv, provKey(acc.Provider, acc.ProviderAccountID))
			delete(a.accounts, accID)
		}
	}

	for _, sess := range a.sessions {
		if sess.UserID == id {
			sess.Revoked = true
		}
	}

	for mID, m := range a.members {
		if m.UserID == id {
			delete(a.membersByOrgUsr, memberKey(m.OrgID, m.UserID))
			delete(a.members, mID)
		}
	}

	return nil
}

// CreateAccount stores a new credential binding.
func (a *MemoryAdapter) CreateAccount(ctx context.Context, account *Account) error {
	if account == nil || account.ID == uuid.Nil || account.Provider == "" || account.ProviderAccountID == "" {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := provKey(account.Provider, account.ProviderAccountID)
	if _, exists := a.accountsByProv[key]; exists {
		return ErrConflict
	}

	a.accounts[account.ID] = copyAccount(account)
	a.accountsByProv[key] = account.ID
	return nil
}

// GetAccountByProvider retrieves an account by its provider binding.
func (a *MemoryAdapter) GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (*Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, exists := a.accountsByProv[provKey(provider, providerAccountID)]
	if !exists {
		return nil, ErrNotFound
	}
	return copyAccount(a.accounts[id]), nil
}

// GetAccountByUserAndProvider retrieves the user's account for one provider.
func (a *MemoryAdapter) GetAccountByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, acc := range a.accounts {
		if acc.UserID == userID && acc.Provider == provider {
			return copyAccount(acc), nil
		}
	}
	return nil, ErrNotFound
}

// ListAccountsByUser returns all accounts owned by the user.
func (a *MemoryAdapter) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*Account
	for _, acc := range a.accounts {
		if acc.UserID == userID {
			result = append(result, copyAccount(acc))
		}
	}
	return result, nil
}

// UpdateAccount replaces an existing account record.
func (a *MemoryAdapter) UpdateAccount(ctx context.Context, account *Account) error {
	if account == nil || account.ID == uuid.Nil {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, exists := a.accounts[account.ID]
	if !exists {
		return ErrNotFound
	}

	oldKey := provKey(existing.Provider, existing.ProviderAccountID)
	newKey := provKey(account.Provider, account.ProviderAccountID)
	if oldKey != newKey {
		if _, taken := a.accountsByProv[newKey]; taken {
			return ErrConflict
		}
		delete(a.accountsByProv, oldKey)
		a.accountsByProv[newKey] = account.ID
	}

	a.accounts[account.ID] = copyAccount(account)
	return nil
}

// DeleteAccount removes an account by ID.
func (a *MemoryAdapter) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, exists := a.accounts[id]
	if !exists {
		return ErrNotFound
	}

	delete(a.accountsByProv, provKey(acc.Provider, acc.ProviderAccountID))
	delete(a.accounts, id)
	return nil
}

// CreateSession stores a new session.
func (a *MemoryAdapter) CreateSession(ctx context.Context, session *Session) error {
	if session == nil || session.Token == "" || session.UserID == uuid.Nil {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, exists := a.sessions[session.Token]; exists && existing.IsLive() {
		return ErrConflict
	}

	a.sessions[session.Token] = copySession(session)
	return nil
}

// GetSessionByToken retrieves a session by token, revoked ones included.
func (a *MemoryAdapter) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	session, exists := a.sessions[token]
	if !exists {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

// RotateSession atomically replaces the current token with a new one.
func (a *MemoryAdapter) RotateSession(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, exists := a.sessions[oldToken]
	if !exists || !session.IsLive() {
		return nil, ErrNotFound
	}
	if _, taken := a.sessions[newToken]; taken {
		return nil, ErrConflict
	}

	// The old token becomes a tombstone: a concurrent validate on it will
	// observe a revoked session, never a second live one.
	tombstone := copySession(session)
	tombstone.Revoked = true
	a.sessions[oldToken] = tombstone

	rotated := copySession(session)
	rotated.Token = newToken
	rotated.ExpiresAt = expiresAt
	rotated.Rotations++
	a.sessions[newToken] = rotated

	return copySession(rotated), nil
}

// ExtendSession atomically moves the expiry of the live session.
func (a *MemoryAdapter) ExtendSession(ctx context.Context, token string, expiresAt time.Time) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, exists := a.sessions[token]
	if !exists || !session.IsLive() {
		return nil, ErrNotFound
	}

	session.ExpiresAt = expiresAt
	return copySession(session), nil
}

// RevokeSession marks the session revoked. Idempotent.
func (a *MemoryAdapter) RevokeSession(ctx context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if session, exists := a.sessions[token]; exists {
		session.Revoked = true
	}
	return nil
}

// RevokeUserSessions revokes every session owned by the user. Idempotent.
func (a *MemoryAdapter) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, session := range a.sessions {
		if session.UserID == userID {
			session.Revoked = true
		}
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry has passed.
func (a *MemoryAdapter) DeleteExpiredSessions(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for token, session := range a.sessions {
		if now.After(session.ExpiresAt) {
			delete(a.sessions, token)
		}
	}
	return nil
}

// CreateVerification stores a new single-use token.
func (a *MemoryAdapter) CreateVerification(ctx context.Context, verification *Verification) error {
	if verification == nil || verification.Value == "" {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.verifications[verification.Value]; exists {
		return ErrConflict
	}

	a.verifications[verification.Value] = copyVerification(verification)
	return nil
}

// ConsumeVerification atomically retrieves and deletes a verification.
func (a *MemoryAdapter) ConsumeVerification(ctx context.Context, value string) (*Verification, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	verification, exists := a.verifications[value]
	if !exists {
		return nil, ErrNotFound
	}

	delete(a.verifications, value)
	return copyVerification(verification), nil
}

// DeleteExpiredVerifications removes verifications whose expiry has passed.
func (a *MemoryAdapter) DeleteExpiredVerifications(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for value, verification := range a.verifications {
		if now.After(verification.ExpiresAt) {
			delete(a.verifications, value)
		}
	}
	return nil
}

// CreateOrganization stores a new organization.
func (a *MemoryAdapter) CreateOrganization(ctx context.Context, org *Organization) error {
	if org == nil || org.ID == uuid.Nil || org.Name == "" {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.organizations[org.ID]; exists {
		return ErrConflict
	}

	c := *org
	a.organizations[org.ID] = &c
	return nil
}

// GetOrganizationByID retrieves an organization.
func (a *MemoryAdapter) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	org, exists := a.organizations[id]
	if !exists {
		return nil, ErrNotFound
	}
	c := *org
	return &c, nil
}

// DeleteOrganization removes the organization and its members.
func (a *MemoryAdapter) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.organizations[id]; !exists {
		return ErrNotFound
	}

	delete(a.organizations, id)
	for mID, m := range a.members {
		if m.OrgID == id {
			delete(a.membersByOrgUsr, memberKey(m.OrgID, m.UserID))
			delete(a.members, mID)
		}
	}
	return nil
}

// CreateMember stores a membership.
func (a *MemoryAdapter) CreateMember(ctx context.Context, member *Member) error {
	if member == nil || member.ID == uuid.Nil || member.OrgID == uuid.Nil || member.UserID == uuid.Nil {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := memberKey(member.OrgID, member.UserID)
	if _, exists := a.membersByOrgUsr[key]; exists {
		return ErrConflict
	}

	a.members[member.ID] = copyMember(member)
	a.membersByOrgUsr[key] = member.ID
	return nil
}

// GetMember retrieves the membership of a user in an organization.
func (a *MemoryAdapter) GetMember(ctx context.Context, userID, orgID uuid.UUID) (*Member, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, exists := a.membersByOrgUsr[memberKey(orgID, userID)]
	if !exists {
		return nil, ErrNotFound
	}
	return copyMember(a.members[id]), nil
}

// UpdateMember replaces an existing member record.
func (a *MemoryAdapter) UpdateMember(ctx context.Context, member *Member) error {
	if member == nil || member.ID == uuid.Nil {
		return ErrInvalidRecord
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.members[member.ID]; !exists {
		return ErrNotFound
	}

	a.members[member.ID] = copyMember(member)
	return nil
}

// DeleteMember removes the membership of a user in an organization.
func (a *MemoryAdapter) DeleteMember(ctx context.Context, userID, orgID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := memberKey(orgID, userID)
	id, exists := a.membersByOrgUsr[key]
	if !exists {
		return ErrNotFound
	}

	delete(a.membersByOrgUsr, key)
	delete(a.members, id)
	return nil
}

// ListMembers returns all members of an organization.
func (a *MemoryAdapter) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*Member
	for _, m := range a.members {
		if m.OrgID == orgID {
			result = append(result, copyMember(m))
		}
	}
	return result, nil
}
