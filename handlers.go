package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/credential"
	"github.com/dmitrymomot/authkit/pkg/plugin"
	"github.com/dmitrymomot/authkit/pkg/store"
)

const maxBodySize = 1 << 20

// routes builds the engine router. Paths are relative to the mount point.
func (e *Engine) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(e.checkOrigin)

	r.Post("/sign-up/email", e.handleSignUp)
	r.Post("/sign-in/email", e.handleSignIn)
	r.Post("/sign-out", e.handleSignOut)

	r.Get("/session", e.handleGetSession)
	r.Post("/session/refresh", e.handleRefreshSession)

	r.Post("/magic-link/request", e.handleMagicLinkRequest)
	r.Get("/magic-link/verify", e.handleMagicLinkVerify)

	r.Post("/verify-email/request", e.handleVerifyEmailRequest)
	r.Get("/verify-email/confirm", e.handleVerifyEmailConfirm)

	r.Post("/password/request-reset", e.handlePasswordResetRequest)
	r.Post("/password/reset", e.handlePasswordReset)
	r.Post("/password/change", e.handlePasswordChange)

	r.Get("/oauth/{provider}", e.handleOAuthStart)
	r.Get("/oauth/{provider}/callback", e.handleOAuthCallback)
	r.Post("/oauth/{provider}/link", e.handleOAuthLink)
	r.Delete("/oauth/{provider}/link", e.handleOAuthUnlink)

	if e.passkeys != nil {
		r.Post("/passkey/register/begin", e.handlePasskeyRegisterBegin)
		r.Post("/passkey/register/finish", e.handlePasskeyRegisterFinish)
		r.Post("/passkey/login/begin", e.handlePasskeyLoginBegin)
		r.Post("/passkey/login/finish", e.handlePasskeyLoginFinish)
		r.Get("/passkey", e.handlePasskeyList)
		r.Delete("/passkey/{credentialID}", e.handlePasskeyRemove)
	}

	r.Delete("/user", e.handleDeleteUser)

	for _, route := range e.registry.Routes() {
		r.Method(route.Method, route.Pattern, route.Handler)
	}

	return r
}

// ServeHTTP-level base path stripping lives in the router mount done by the
// host; when the engine is handed full paths (plain http.ServeMux), the
// configured base path is cut here.
func (e *Engine) stripBasePath(r *http.Request) *http.Request {
	base := e.cfg.BasePath
	if base == "" || base == "/" {
		return r
	}
	rest, ok := strings.CutPrefix(r.URL.Path, base)
	if !ok || (rest != "" && rest[0] != '/') {
		return r
	}
	if rest == "" {
		rest = "/"
	}
	r2 := r.Clone(r.Context())
	r2.URL.Path = rest
	return r2
}

func (e *Engine) decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

// runOperation drives one request through the hook pipeline: before-hooks,
// the core operation, then after-hooks. A before-hook short-circuit skips
// the core but after-hooks still observe the terminal result.
func (e *Engine) runOperation(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	before, after plugin.Point,
	payload map[string]any,
	core func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error),
) {
	ctx := r.Context()
	pc := plugin.NewContext(&plugin.Request{
		Operation: operation,
		HTTP:      r,
		Payload:   payload,
	})

	result, err := e.registry.RunBefore(ctx, before, pc)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	if result == nil {
		result, err = core(ctx, pc)
		if err != nil {
			e.respondError(w, r, err)
			return
		}
	}

	result, err = e.registry.RunAfter(ctx, after, pc, result)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondResult(w, result)
}

// establishSession runs the session-create hook points around issuing a
// session and writing its token to the transport. A before-hook result is
// terminal: no session is created and the result is returned for rendering.
func (e *Engine) establishSession(ctx context.Context, pc *plugin.Context, w http.ResponseWriter, userID uuid.UUID) (*store.Session, *plugin.Result, error) {
	pc.UserID = userID

	if result, err := e.registry.RunBefore(ctx, plugin.BeforeSessionCreate, pc); err != nil {
		return nil, nil, err
	} else if result != nil {
		return nil, result, nil
	}

	sess, err := e.sessions.Create(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	if err := e.transport.SetToken(w, sess.Token, time.Until(sess.ExpiresAt)); err != nil {
		return nil, nil, err
	}

	// The session exists and its token is already on the wire; a failing
	// after-hook cannot unwind that, so it is logged and ignored.
	if _, err := e.registry.RunAfter(ctx, plugin.AfterSessionCreate, pc, &plugin.Result{Status: http.StatusOK}); err != nil {
		e.logger.Warn("session create after-hook failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
	}

	return sess, nil, nil
}

type authResponse struct {
	User    *store.User    `json:"user"`
	Session *store.Session `json:"session"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (e *Engine) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.runOperation(w, r, "sign_up.email",
		plugin.BeforeSignUp, plugin.AfterSignUp,
		map[string]any{"email": req.Email},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := e.password.Register(ctx, req.Email, req.Password)
			if err != nil {
				return nil, err
			}
			if req.Name != "" {
				user.Name = req.Name
				if err := e.store.UpdateUser(ctx, user); err != nil {
					e.logger.Warn("failed to store user name", slog.Any("error", err))
				}
			}

			e.sendEmailVerification(ctx, user)

			sess, terminal, err := e.establishSession(ctx, pc, w, user.ID)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}

			return &plugin.Result{
				Status: http.StatusCreated,
				Body:   authResponse{User: user, Session: sess},
			}, nil
		},
	)
}

func (e *Engine) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.runOperation(w, r, "sign_in.email",
		plugin.BeforeSignIn, plugin.AfterSignIn,
		map[string]any{"email": req.Email},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := e.password.Verify(ctx, req.Email, req.Password)
			if err != nil {
				return nil, err
			}

			sess, terminal, err := e.establishSession(ctx, pc, w, user.ID)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   authResponse{User: user, Session: sess},
			}, nil
		},
	)
}

func (e *Engine) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, _ := e.transport.GetToken(r)

	e.runOperation(w, r, "sign_out",
		plugin.BeforeSignOut, plugin.AfterSignOut,
		nil,
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			if err := e.sessions.Revoke(ctx, token); err != nil {
				return nil, err
			}
			if err := e.transport.ClearToken(w); err != nil {
				return nil, err
			}
			return &plugin.Result{Status: http.StatusNoContent}, nil
		},
	)
}

func (e *Engine) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	user, err := e.store.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, authResponse{User: user, Session: sess})
}

func (e *Engine) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	token, err := e.transport.GetToken(r)
	if err != nil {
		e.respondError(w, r, ErrUnauthenticated)
		return
	}

	e.runOperation(w, r, "session.refresh",
		plugin.BeforeSessionRefresh, plugin.AfterSessionRefresh,
		nil,
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			sess, err := e.sessions.Refresh(ctx, token)
			if err != nil {
				return nil, err
			}
			pc.UserID = sess.UserID

			if err := e.transport.SetToken(w, sess.Token, time.Until(sess.ExpiresAt)); err != nil {
				return nil, err
			}

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   map[string]any{"session": sess},
			}, nil
		},
	)
}

func (e *Engine) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.runOperation(w, r, "magic_link.request",
		plugin.BeforeSignIn, plugin.AfterSignIn,
		map[string]any{"email": req.Email},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			// The response never reveals whether the email is registered.
			link, err := e.magic.Request(ctx, req.Email)
			switch {
			case errors.Is(err, credential.ErrUserNotFound), errors.Is(err, credential.ErrInvalidEmail):
				e.logger.Info("magic link requested for unknown email")
			case err != nil:
				return nil, err
			default:
				if e.messages != nil {
					if err := e.messages.SendMagicLink(ctx, link.Email, link.Token); err != nil {
						e.logger.Error("failed to send magic link", slog.Any("error", err))
					}
				}
			}

			return &plugin.Result{
				Status: http.StatusAccepted,
				Body:   statusResponse{Status: "sent"},
			}, nil
		},
	)
}

func (e *Engine) handleMagicLinkVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	e.runOperation(w, r, "magic_link.verify",
		plugin.BeforeVerify, plugin.AfterVerify,
		nil,
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := e.magic.Verify(ctx, token)
			if err != nil {
				return nil, err
			}

			sess, terminal, err := e.establishSession(ctx, pc, w, user.ID)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   authResponse{User: user, Session: sess},
			}, nil
		},
	)
}

func (e *Engine) handleVerifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	user, err := e.store.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.sendEmailVerification(r.Context(), user)
	e.respondJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

func (e *Engine) handleVerifyEmailConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	e.runOperation(w, r, "verify_email.confirm",
		plugin.BeforeVerify, plugin.AfterVerify,
		nil,
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := e.verifier.Confirm(ctx, token)
			if err != nil {
				return nil, err
			}
			pc.UserID = user.ID

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   map[string]any{"user": user},
			}, nil
		},
	)
}

func (e *Engine) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	ctx := r.Context()

	// Always 202: the response never reveals whether the email is registered.
	reset, err := e.password.RequestReset(ctx, req.Email)
	switch {
	case errors.Is(err, credential.ErrUserNotFound):
		e.logger.Info("password reset requested for unknown email")
	case err != nil:
		e.respondError(w, r, err)
		return
	default:
		if e.messages != nil {
			if err := e.messages.SendPasswordReset(ctx, reset.Email, reset.Token); err != nil {
				e.logger.Error("failed to send password reset", slog.Any("error", err))
			}
		}
	}

	e.respondJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

func (e *Engine) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	ctx := r.Context()

	user, err := e.password.Reset(ctx, req.Token, req.NewPassword)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	// A reset invalidates every existing session of the user.
	if err := e.sessions.RevokeAll(ctx, user.ID); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, statusResponse{Status: "reset"})
}

func (e *Engine) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	if err := e.password.ChangePassword(r.Context(), sess.UserID, req.OldPassword, req.NewPassword); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusNoContent, nil)
}

func (e *Engine) oauthService(r *http.Request) (*credential.OAuthService, error) {
	provider := chi.URLParam(r, "provider")
	svc, ok := e.oauth[provider]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return svc, nil
}

func (e *Engine) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	svc, err := e.oauthService(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	url, err := svc.AuthURL(r.Context())
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (e *Engine) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	svc, err := e.oauthService(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	e.runOperation(w, r, "sign_in.oauth",
		plugin.BeforeSignIn, plugin.AfterSignIn,
		map[string]any{"provider": svc.ProviderID()},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := svc.Callback(ctx, code, state)
			if err != nil {
				return nil, err
			}

			sess, terminal, err := e.establishSession(ctx, pc, w, user.ID)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   authResponse{User: user, Session: sess},
			}, nil
		},
	)
}

func (e *Engine) handleOAuthLink(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	svc, err := e.oauthService(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	user, err := svc.Link(r.Context(), sess.UserID, req.Code, req.State)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (e *Engine) handleOAuthUnlink(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	svc, err := e.oauthService(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	if err := svc.Unlink(r.Context(), sess.UserID); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusNoContent, nil)
}

func (e *Engine) handlePasskeyRegisterBegin(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	challenge, err := e.passkeys.BeginRegistration(r.Context(), sess.UserID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, challenge)
}

func (e *Engine) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	var req struct {
		Token      string          `json:"token"`
		Credential json.RawMessage `json:"credential"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	if err := e.passkeys.FinishRegistration(r.Context(), sess.UserID, req.Token, bytes.NewReader(req.Credential)); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusCreated, statusResponse{Status: "registered"})
}

func (e *Engine) handlePasskeyLoginBegin(w http.ResponseWriter, r *http.Request) {
	challenge, err := e.passkeys.BeginLogin(r.Context())
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusOK, challenge)
}

func (e *Engine) handlePasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token      string          `json:"token"`
		Credential json.RawMessage `json:"credential"`
	}
	if err := e.decodeJSON(r, &req); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.runOperation(w, r, "sign_in.passkey",
		plugin.BeforeSignIn, plugin.AfterSignIn,
		map[string]any{"provider": store.ProviderPasskey},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			user, err := e.passkeys.FinishLogin(ctx, req.Token, bytes.NewReader(req.Credential))
			if err != nil {
				return nil, err
			}

			sess, terminal, err := e.establishSession(ctx, pc, w, user.ID)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}

			return &plugin.Result{
				Status: http.StatusOK,
				Body:   authResponse{User: user, Session: sess},
			}, nil
		},
	)
}

type passkeyInfo struct {
	CredentialID string    `json:"credential_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *Engine) handlePasskeyList(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	accounts, err := e.passkeys.ListPasskeys(r.Context(), sess.UserID)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	infos := make([]passkeyInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, passkeyInfo{
			CredentialID: a.ProviderAccountID,
			CreatedAt:    a.CreatedAt,
		})
	}

	e.respondJSON(w, http.StatusOK, map[string]any{"passkeys": infos})
}

func (e *Engine) handlePasskeyRemove(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	credentialID := chi.URLParam(r, "credentialID")
	if err := e.passkeys.RemovePasskey(r.Context(), sess.UserID, credentialID); err != nil {
		e.respondError(w, r, err)
		return
	}

	e.respondJSON(w, http.StatusNoContent, nil)
}

func (e *Engine) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	sess, err := e.authenticate(r)
	if err != nil {
		e.respondError(w, r, err)
		return
	}

	e.runOperation(w, r, "user.delete",
		plugin.BeforeUserDelete, plugin.AfterUserDelete,
		map[string]any{"user_id": sess.UserID.String()},
		func(ctx context.Context, pc *plugin.Context) (*plugin.Result, error) {
			pc.UserID = sess.UserID

			if err := e.store.DeleteUser(ctx, sess.UserID); err != nil {
				return nil, err
			}
			if err := e.transport.ClearToken(w); err != nil {
				return nil, err
			}

			return &plugin.Result{Status: http.StatusNoContent}, nil
		},
	)
}

// sendEmailVerification issues a verification token and mails it. Failures
// never fail the surrounding operation.
func (e *Engine) sendEmailVerification(ctx context.Context, user *store.User) {
	if e.messages == nil || user.Verified {
		return
	}
	link, err := e.verifier.Request(ctx, user.ID)
	if err != nil {
		e.logger.Error("failed to issue email verification", slog.Any("error", err))
		return
	}
	if err := e.messages.SendEmailVerification(ctx, link.Email, link.Token); err != nil {
		e.logger.Error("failed to send email verification", slog.Any("error", err))
	}
}
