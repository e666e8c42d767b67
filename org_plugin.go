package authkit

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/plugin"
	"github.com/dmitrymomot/authkit/pkg/store"
)

// organizationPlugin contributes the organization and membership routes. The
// creator of an organization becomes its owner; every other operation is
// authorized through the access resolver against the caller's roles in the
// target organization.
func (e *Engine) organizationPlugin() plugin.Plugin {
	return plugin.Plugin{
		ID: "organizations",
		Routes: []plugin.Route{
			{Method: http.MethodPost, Pattern: "/org", Handler: e.handleOrgCreate},
			{Method: http.MethodGet, Pattern: "/org/{orgID}", Handler: e.handleOrgGet},
			{Method: http.MethodDelete, Pattern: "/org/{orgID}", Handler: e.handleOrgDelete},
			{Method: http.MethodGet, Pattern: "/org/{orgID}/permissions", Handler: e.handleOrgPermissions},
			{Method: http.MethodPost, Pattern: "/org/{orgID}/members", Handler: e.handleMemberAdd},
			{Method: http.MethodGet, Pattern: "/org/{orgID}/members", Handler: e.handleMemberList},
			{Method: http.MethodPatch, Pattern: "/org/{orgID}/members/{userID}", Handler: e.handleMemberUpdate},
			{Method: http.MethodDelete, Pattern: "/org/{orgID}/members/{userID}", Handler: e.handleMemberRemove},
		},
	}
}

func (e *Engine) orgRequest(r *http.Request) (*store.Session, uuid.UUID, error) {
	sess, err := e.authenticate(r)
	if err != nil {
		return nil, uuid.Nil, err
	}
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		return nil, uuid.Nil, store.ErrNotFound
	}
	return sess, orgID, nil
}

func (e *Engine) handleOrgCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}
	if req.Name == "" {
		e.respondError(w, r, ErrInvalidRequest)
		return
	}

	ctx := r.Context()
	now := time.Now()

	org := &store.Organization{
		ID:        uuid.New(),
		Name:      req.Name,
		Slug:      req.Slug,
		CreatedAt: now,
	}
	if err := e.store.CreateOrganization(ctx, org); err != nil {
		e.respondError(w, r, err)
		return
	}

	member := &store.Member{
		ID:        uuid.New(),
		OrgID:     org.ID,
		UserID:    sess.UserID,
		Roles:     []string{"owner"},
		CreatedAt: now,
	}
	if err := e.store.CreateMember(ctx, member); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusCreated, map[string]any{
		"organization": org,
		"member":       member,
	})
}

func (e *Engine) handleOrgGet(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := e.resolver.Require(ctx, sess.UserID, orgID, "org.read"); err != nil {
		e.respondError(w, r, err)
		return
	}

	org, err := e.store.GetOrganizationByID(ctx, orgID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (e *Engine) handleOrgDelete(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := e.resolver.Require(ctx, sess.UserID, orgID, "org.delete"); err != nil {
		e.respondError(w, r, err)
		return
	}

	if err := e.store.DeleteOrganization(ctx, orgID); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusNoContent, nil)
}

func (e *Engine) handleOrgPermissions(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	permissions, err := e.resolver.Resolve(r.Context(), sess.UserID, orgID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

func (e *Engine) handleMemberAdd(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	var req struct {
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{"member"}
	}

	// Users are stored with lowercased emails; match the lookup to that.
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := r.Context()
	if err := e.resolver.Require(ctx, sess.UserID, orgID, "member.create"); err != nil {
		e.respondError(w, r, err)
		return
	}

	for _, role := range req.Roles {
		if err := e.resolver.VerifyRole(role); err != nil {
			e.respondError(w, r, ErrInvalidRequest)
			return
		}
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	member := &store.Member{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    user.ID,
		Roles:     req.Roles,
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateMember(ctx, member); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusCreated, map[string]any{"member": member})
}

func (e *Engine) handleMemberList(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := e.resolver.Require(ctx, sess.UserID, orgID, "member.read"); err != nil {
		e.respondError(w, r, err)
		return
	}

	members, err := e.store.ListMembers(ctx, orgID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (e *Engine) handleMemberUpdate(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		e.respondError(w, r, store.ErrNotFound)
		return
	}

	var req struct {
		Roles []string `json:"roles"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}
	if len(req.Roles) == 0 {
		e.respondError(w, r, ErrInvalidRequest)
		return
	}

	ctx := r.Context()
	if err := e.resolver.Require(ctx, sess.UserID, orgID, "member.update"); err != nil {
		e.respondError(w, r, err)
		return
	}

	for _, role := range req.Roles {
		if err := e.resolver.VerifyRole(role); err != nil {
			e.respondError(w, r, ErrInvalidRequest)
			return
		}
	}

	member, err := e.store.GetMember(ctx, targetID, orgID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	member.Roles = req.Roles
	if err := e.store.UpdateMember(ctx, member); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"member": member})
}

func (e *Engine) handleMemberRemove(w http.ResponseWriter, r *http.Request) {
	sess, orgID, err := e.orgRequest(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		e.respondError(w, r, store.ErrNotFound)
		return
	}

	ctx := r.Context()

	// Members may always leave on their own; removing someone else needs
	// the permission.
	if targetID != sess.UserID {
		if err := e.resolver.Require(ctx, sess.UserID, orgID, "member.delete"); err != nil {
			e.respondError(w, r, err)
			return
		}
	}

	if err := e.store.DeleteMember(ctx, targetID, orgID); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusNoContent, nil)
}
