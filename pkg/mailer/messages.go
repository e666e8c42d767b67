package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
)

// Messages turns verification tokens into ready-to-send emails. Links are
// built against the configured base URL; the path layout matches the routes
// the HTTP handlers mount.
type Messages struct {
	sender  EmailSender
	appName string
	baseURL string
}

// NewMessages creates an email builder on top of a sender.
func NewMessages(sender EmailSender, cfg Config) *Messages {
	return &Messages{
		sender:  sender,
		appName: cfg.AppName,
		baseURL: cfg.BaseURL,
	}
}

var messageTmpl = template.Must(template.New("message").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>{{.Title}}</h2>
  <p>{{.Intro}}</p>
  <p><a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background: #111; color: #fff; text-decoration: none; border-radius: 4px;">{{.Action}}</a></p>
  <p style="color: #666; font-size: 13px;">If you did not request this, you can ignore this email.</p>
  <p style="color: #666; font-size: 13px;">{{.AppName}}</p>
</body>
</html>`))

type messageData struct {
	Title   string
	Intro   string
	Link    string
	Action  string
	AppName string
}

func (m *Messages) send(ctx context.Context, to, subject, tag string, data messageData) error {
	data.AppName = m.appName

	var body bytes.Buffer
	if err := messageTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	return m.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  subject,
		BodyHTML: body.String(),
		Tag:      tag,
	})
}

func (m *Messages) link(path, token string) string {
	return m.baseURL + path + "?token=" + url.QueryEscape(token)
}

// SendMagicLink delivers a passwordless sign-in link.
func (m *Messages) SendMagicLink(ctx context.Context, to, token string) error {
	return m.send(ctx, to, "Sign in to "+m.appName, "magic-link", messageData{
		Title:  "Sign in",
		Intro:  "Use the button below to sign in. The link works once and expires shortly.",
		Link:   m.link("/auth/magic-link/verify", token),
		Action: "Sign in",
	})
}

// SendEmailVerification delivers an email confirmation link.
func (m *Messages) SendEmailVerification(ctx context.Context, to, token string) error {
	return m.send(ctx, to, "Confirm your email", "email-verify", messageData{
		Title:  "Confirm your email",
		Intro:  "Confirm that this address belongs to you.",
		Link:   m.link("/auth/verify-email/confirm", token),
		Action: "Confirm email",
	})
}

// SendPasswordReset delivers a password reset link.
func (m *Messages) SendPasswordReset(ctx context.Context, to, token string) error {
	return m.send(ctx, to, "Reset your password", "password-reset", messageData{
		Title:  "Reset your password",
		Intro:  "Use the button below to choose a new password. The link works once and expires shortly.",
		Link:   m.link("/auth/password/reset", token),
		Action: "Reset password",
	})
}
