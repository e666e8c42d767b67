package access_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/access"
	"github.com/dmitrymomot/authkit/pkg/store"
)

func testRoles() map[string][]string {
	return map[string][]string{
		"owner":  {"*"},
		"admin":  {"org.*", "member.*"},
		"member": {"org.read", "project.read"},
		"editor": {"project.read", "project.write"},
	}
}

func setupResolver(t *testing.T) (*access.Resolver, *store.MemoryAdapter) {
	t.Helper()

	adapter := store.NewMemoryAdapter(0)
	t.Cleanup(func() { _ = adapter.Close() })

	resolver, err := access.NewResolver(context.Background(), access.NewStaticRoleSource(testRoles()), adapter)
	require.NoError(t, err)
	return resolver, adapter
}

func addMember(t *testing.T, adapter *store.MemoryAdapter, orgID, userID uuid.UUID, roles ...string) {
	t.Helper()
	require.NoError(t, adapter.CreateMember(context.Background(), &store.Member{
		ID:     uuid.New(),
		OrgID:  orgID,
		UserID: userID,
		Roles:  roles,
	}))
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no membership resolves to empty set", func(t *testing.T) {
		t.Parallel()
		resolver, _ := setupResolver(t)

		perms, err := resolver.Resolve(ctx, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, perms)
		assert.False(t, perms.Has("org.read"))
	})

	t.Run("single role", func(t *testing.T) {
		t.Parallel()
		resolver, adapter := setupResolver(t)

		orgID, userID := uuid.New(), uuid.New()
		addMember(t, adapter, orgID, userID, "member")

		perms, err := resolver.Resolve(ctx, userID, orgID)
		require.NoError(t, err)
		assert.True(t, perms.Has("org.read"))
		assert.False(t, perms.Has("org.delete"))
	})

	t.Run("multiple roles union", func(t *testing.T) {
		t.Parallel()
		resolver, adapter := setupResolver(t)

		orgID, userID := uuid.New(), uuid.New()
		addMember(t, adapter, orgID, userID, "member", "editor")

		perms, err := resolver.Resolve(ctx, userID, orgID)
		require.NoError(t, err)
		assert.True(t, perms.Has("org.read"))
		assert.True(t, perms.Has("project.write"))
		assert.False(t, perms.Has("member.invite"))
	})

	t.Run("wildcard roles", func(t *testing.T) {
		t.Parallel()
		resolver, adapter := setupResolver(t)

		orgID := uuid.New()
		ownerID, adminID := uuid.New(), uuid.New()
		addMember(t, adapter, orgID, ownerID, "owner")
		addMember(t, adapter, orgID, adminID, "admin")

		ownerPerms, err := resolver.Resolve(ctx, ownerID, orgID)
		require.NoError(t, err)
		assert.True(t, ownerPerms.Has("anything.at.all"))

		adminPerms, err := resolver.Resolve(ctx, adminID, orgID)
		require.NoError(t, err)
		assert.True(t, adminPerms.Has("member.remove"))
		assert.False(t, adminPerms.Has("billing.manage"))
	})

	t.Run("unconfigured role grants nothing", func(t *testing.T) {
		t.Parallel()
		resolver, adapter := setupResolver(t)

		orgID, userID := uuid.New(), uuid.New()
		addMember(t, adapter, orgID, userID, "ghost")

		perms, err := resolver.Resolve(ctx, userID, orgID)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})

	t.Run("membership is per organization", func(t *testing.T) {
		t.Parallel()
		resolver, adapter := setupResolver(t)

		userID := uuid.New()
		homeOrg, otherOrg := uuid.New(), uuid.New()
		addMember(t, adapter, homeOrg, userID, "admin")

		perms, err := resolver.Resolve(ctx, userID, otherOrg)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}

func TestResolver_Require(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver, adapter := setupResolver(t)

	orgID, userID := uuid.New(), uuid.New()
	addMember(t, adapter, orgID, userID, "member")

	assert.NoError(t, resolver.Require(ctx, userID, orgID, "org.read"))
	assert.ErrorIs(t, resolver.Require(ctx, userID, orgID, "org.delete"), access.ErrForbidden)
	assert.ErrorIs(t, resolver.Require(ctx, uuid.New(), orgID, "org.read"), access.ErrForbidden)
}

func TestResolver_VerifyRole(t *testing.T) {
	t.Parallel()

	resolver, _ := setupResolver(t)

	assert.NoError(t, resolver.VerifyRole("admin"))
	assert.ErrorIs(t, resolver.VerifyRole("nonexistent"), access.ErrUnknownRole)
}

func TestPermissionSet(t *testing.T) {
	t.Parallel()

	t.Run("normalizes input", func(t *testing.T) {
		t.Parallel()

		set := access.NewPermissionSet("  b.read ", "a.write", "b.read", "")
		assert.Equal(t, access.PermissionSet{"a.write", "b.read"}, set)
	})

	tests := []struct {
		name       string
		granted    []string
		permission string
		want       bool
	}{
		{name: "direct match", granted: []string{"org.read"}, permission: "org.read", want: true},
		{name: "global wildcard", granted: []string{"*"}, permission: "whatever", want: true},
		{name: "namespace wildcard", granted: []string{"org.*"}, permission: "org.read", want: true},
		{name: "namespace wildcard deep", granted: []string{"org.*"}, permission: "org.members.invite", want: true},
		{name: "wildcard does not match bare prefix", granted: []string{"org.*"}, permission: "org", want: false},
		{name: "no match", granted: []string{"org.read"}, permission: "org.write", want: false},
		{name: "empty set", granted: nil, permission: "org.read", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set := access.NewPermissionSet(tt.granted...)
			assert.Equal(t, tt.want, set.Has(tt.permission))
		})
	}

	t.Run("HasAll and HasAny", func(t *testing.T) {
		t.Parallel()

		set := access.NewPermissionSet("org.read", "project.*")
		assert.True(t, set.HasAll("org.read", "project.write"))
		assert.False(t, set.HasAll("org.read", "org.write"))
		assert.True(t, set.HasAny("org.write", "project.read"))
		assert.False(t, set.HasAny("org.write", "billing.read"))
	})
}

func TestFileRoleSource(t *testing.T) {
	t.Parallel()

	t.Run("loads yaml table", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "roles.yaml")
		content := `roles:
  owner: ["*"]
  member:
    - org.read
    - project.read
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		roles, err := access.NewFileRoleSource(path).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"*"}, roles["owner"])
		assert.Equal(t, []string{"org.read", "project.read"}, roles["member"])
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := access.NewFileRoleSource("/nonexistent/roles.yaml").Load(context.Background())
		assert.Error(t, err)
	})
}
