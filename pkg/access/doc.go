// Package access computes effective permissions for a user within an
// organization.
//
// The role→permission table is static configuration loaded once at startup
// through a RoleSource and treated as read-only afterwards. Resolution is a
// pure lookup: find the user's member record in the organization, union the
// permission sets of every role it carries. A user with no member record
// resolves to the empty set: access fails closed, never with an error.
//
// The mapping is flat: roles do not inherit from other roles. Composition is
// expressed by giving a member several roles, or by wildcard permissions.
// Permissions are dot-delimited scopes with wildcard support:
//
//	"project.read"  matches the permission "project.read"
//	"project.*"     matches any permission under "project."
//	"*"             matches everything
//
// Role→permission resolution happens once per request; callers that need the
// result at several pipeline stages cache it in the request-scoped plugin
// context, never across requests, so live role changes take effect on the
// next request.
//
// # Usage
//
//	source := access.NewStaticRoleSource(map[string][]string{
//	    "owner":  {"*"},
//	    "admin":  {"org.*", "member.*"},
//	    "member": {"org.read"},
//	})
//	resolver, err := access.NewResolver(ctx, source, adapter)
//
//	perms, err := resolver.Resolve(ctx, userID, orgID)
//	if perms.Has("member.invite") { ... }
//
//	err = resolver.Require(ctx, userID, orgID, "org.delete") // access.ErrForbidden
package access
