package authkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/authkit/pkg/access"
	"github.com/dmitrymomot/authkit/pkg/credential"
	"github.com/dmitrymomot/authkit/pkg/mailer"
	"github.com/dmitrymomot/authkit/pkg/plugin"
	"github.com/dmitrymomot/authkit/pkg/ratelimit"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/store"
)

// Engine is the embeddable authentication engine. It implements http.Handler
// and is mounted as a sub-router of the host application. All fields are
// wired at construction and shared read-only across requests.
type Engine struct {
	store     store.Adapter
	cfg       Config
	logger    *slog.Logger
	registry  *plugin.Registry
	sessions  *session.Manager
	transport session.Transport
	password  *credential.PasswordService
	magic     *credential.MagicLinkService
	verifier  *credential.EmailVerifier
	oauth     map[string]*credential.OAuthService
	passkeys  *credential.PasskeyService
	resolver  *access.Resolver
	messages  *mailer.Messages
	limiter   ratelimit.Limiter
	router    chi.Router
}

type engineOptions struct {
	cfg        *Config
	logger     *slog.Logger
	transport  session.Transport
	plugins    []plugin.Plugin
	providers  []credential.ProviderAdapter
	passkeyCfg *credential.PasskeyConfig
	sender     mailer.EmailSender
	roleSource access.RoleSource
	limiter    ratelimit.Limiter
	noLimiter  bool
}

// Option configures the engine during construction.
type Option func(*engineOptions)

// WithConfig replaces the default engine configuration.
func WithConfig(cfg Config) Option {
	return func(o *engineOptions) {
		o.cfg = &cfg
	}
}

// WithLogger sets the logger shared by the engine and its services.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithTransport replaces the default cookie+header token transport.
func WithTransport(t session.Transport) Option {
	return func(o *engineOptions) {
		o.transport = t
	}
}

// WithPlugin registers a plugin. Plugins run in registration order, after
// the engine's built-in plugins.
func WithPlugin(p plugin.Plugin) Option {
	return func(o *engineOptions) {
		o.plugins = append(o.plugins, p)
	}
}

// WithOAuth enables an OAuth provider. May be given multiple times, once per
// provider.
func WithOAuth(adapter credential.ProviderAdapter) Option {
	return func(o *engineOptions) {
		o.providers = append(o.providers, adapter)
	}
}

// WithPasskeys enables WebAuthn passkey routes.
func WithPasskeys(cfg credential.PasskeyConfig) Option {
	return func(o *engineOptions) {
		o.passkeyCfg = &cfg
	}
}

// WithMailer enables outbound email for magic links, email verification and
// password resets. Without it magic-link and reset tokens are still issued
// but never delivered, and no email-verification token is created on
// sign-up or verification requests.
func WithMailer(sender mailer.EmailSender) Option {
	return func(o *engineOptions) {
		o.sender = sender
	}
}

// WithRoles replaces the default role-to-permission mapping.
func WithRoles(source access.RoleSource) Option {
	return func(o *engineOptions) {
		o.roleSource = source
	}
}

// WithRateLimiter replaces the default in-memory token bucket guarding
// credential operations.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(o *engineOptions) {
		o.limiter = l
	}
}

// WithoutRateLimit disables the built-in credential rate limiting.
func WithoutRateLimit() Option {
	return func(o *engineOptions) {
		o.noLimiter = true
	}
}

// defaultRoles is the built-in role mapping used when no WithRoles source is
// supplied. Owner holds every permission; admin manages the organization and
// its members; member reads.
func defaultRoles() access.RoleSource {
	return access.NewStaticRoleSource(map[string][]string{
		"owner":  {access.Wildcard},
		"admin":  {"org.read", "org.update", "member.*"},
		"member": {"org.read", "member.read"},
	})
}

// New creates an engine over the given storage adapter.
func New(ctx context.Context, adapter store.Adapter, opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := DefaultConfig()
	if o.cfg != nil {
		cfg = *o.cfg
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	transport := o.transport
	if transport == nil {
		transport = session.NewCompositeTransport(
			session.NewCookieTransport(cfg.Session.CookieName, cfg.Session.SecureCookies),
			session.NewHeaderTransport(),
		)
	}

	e := &Engine{
		store:     adapter,
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		registry:  plugin.NewRegistry(),
		oauth:     make(map[string]*credential.OAuthService),
	}

	e.sessions = session.NewManager(adapter,
		session.WithConfig(cfg.Session),
		session.WithLogger(logger),
	)
	e.password = credential.NewPasswordService(adapter,
		credential.WithPasswordLogger(logger),
	)
	e.magic = credential.NewMagicLinkService(adapter,
		credential.WithMagicLinkLogger(logger),
	)
	e.verifier = credential.NewEmailVerifier(adapter, 24*time.Hour)

	for _, provider := range o.providers {
		svc := credential.NewOAuthService(adapter, provider,
			credential.WithOAuthLogger(logger),
			credential.WithAutoLink(cfg.AutoLinkOAuth),
			credential.WithVerifiedOnly(cfg.RequireVerifiedOAuthEmail),
		)
		if _, exists := e.oauth[svc.ProviderID()]; exists {
			return nil, fmt.Errorf("duplicate oauth provider %q", svc.ProviderID())
		}
		e.oauth[svc.ProviderID()] = svc
	}

	if o.passkeyCfg != nil {
		svc, err := credential.NewPasskeyService(adapter, *o.passkeyCfg,
			credential.WithPasskeyLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure passkeys: %w", err)
		}
		e.passkeys = svc
	}

	roleSource := o.roleSource
	if roleSource == nil {
		roleSource = defaultRoles()
	}
	resolver, err := access.NewResolver(ctx, roleSource, adapter, access.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	e.resolver = resolver

	if o.sender != nil {
		e.messages = mailer.NewMessages(o.sender, cfg.Mailer)
	}

	if !o.noLimiter {
		limiter := o.limiter
		if limiter == nil {
			limiter, err = ratelimit.NewBucket(ratelimit.NewMemoryStore(), cfg.RateLimit)
			if err != nil {
				return nil, fmt.Errorf("failed to configure rate limiting: %w", err)
			}
		}
		e.limiter = limiter
		if err := e.registry.Register(e.rateLimitPlugin()); err != nil {
			return nil, err
		}
	}

	if err := e.registry.Register(e.organizationPlugin()); err != nil {
		return nil, err
	}

	for _, p := range o.plugins {
		if err := e.registry.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register plugin %q: %w", p.ID, err)
		}
	}

	e.router = e.routes()

	return e, nil
}

// ServeHTTP dispatches to the engine's router. When the host mounts the
// engine without stripping the base path, the configured prefix is cut off
// first.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, e.stripBasePath(r))
}

// Sessions exposes the session manager for host-application use.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Resolver exposes the access resolver so host handlers can authorize
// operations outside the engine's routes.
func (e *Engine) Resolver() *access.Resolver {
	return e.resolver
}

// Store exposes the storage adapter.
func (e *Engine) Store() store.Adapter {
	return e.store
}

var _ http.Handler = (*Engine)(nil)
