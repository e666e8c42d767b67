package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// Resolver computes effective permission sets from organization membership
// and the configured role table. It is safe for concurrent use: the role
// table is immutable after construction, and membership reads go through the
// storage adapter.
type Resolver struct {
	roles  map[string]PermissionSet
	store  store.OrganizationStore
	logger *slog.Logger
}

// ResolverOption configures a Resolver during construction.
type ResolverOption func(*Resolver)

// WithLogger sets a custom logger for the resolver.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver loads the role table from the source and precomputes normalized
// permission sets per role.
func NewResolver(ctx context.Context, source RoleSource, s store.OrganizationStore, opts ...ResolverOption) (*Resolver, error) {
	table, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load role table: %w", err)
	}

	roles := make(map[string]PermissionSet, len(table))
	for role, permissions := range table {
		roles[role] = NewPermissionSet(permissions...)
	}

	r := &Resolver{
		roles:  roles,
		store:  s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Roles returns the names of all configured roles.
func (r *Resolver) Roles() []string {
	names := make([]string, 0, len(r.roles))
	for role := range r.roles {
		names = append(names, role)
	}
	return names
}

// VerifyRole returns ErrUnknownRole if the role has no permission mapping.
func (r *Resolver) VerifyRole(role string) error {
	if _, exists := r.roles[role]; !exists {
		return ErrUnknownRole
	}
	return nil
}

// Resolve returns the union of the permission sets of every role the user
// holds in the organization. A user with no member record resolves to the
// empty set with a nil error: access fails closed.
func (r *Resolver) Resolve(ctx context.Context, userID, orgID uuid.UUID) (PermissionSet, error) {
	member, err := r.store.GetMember(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EmptyPermissionSet, nil
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	result := EmptyPermissionSet
	for _, role := range member.Roles {
		set, exists := r.roles[role]
		if !exists {
			// A role with no mapping grants nothing; likely a config drift.
			r.logger.Warn("member carries unconfigured role",
				slog.String("role", role),
				slog.String("org_id", orgID.String()),
			)
			continue
		}
		result = result.Union(set)
	}

	return result, nil
}

// Authorize reports whether the user holds the required permission in the
// organization.
func (r *Resolver) Authorize(ctx context.Context, userID, orgID uuid.UUID, permission string) (bool, error) {
	perms, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return perms.Has(permission), nil
}

// Require is Authorize with denial expressed as ErrForbidden.
func (r *Resolver) Require(ctx context.Context, userID, orgID uuid.UUID, permission string) error {
	ok, err := r.Authorize(ctx, userID, orgID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
