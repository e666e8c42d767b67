package mailer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/mailer"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := mailer.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Hello",
		BodyHTML: "<p>hi</p>",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*mailer.SendEmailParams)
	}{
		{"missing recipient", func(p *mailer.SendEmailParams) { p.SendTo = "" }},
		{"malformed recipient", func(p *mailer.SendEmailParams) { p.SendTo = "not-an-email" }},
		{"missing subject", func(p *mailer.SendEmailParams) { p.Subject = "" }},
		{"missing body", func(p *mailer.SendEmailParams) { p.BodyHTML = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := valid
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), mailer.ErrInvalidParams)
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := mailer.NewDevSender(dir)

	err := sender.SendEmail(context.Background(), mailer.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Test Email",
		BodyHTML: "<p>hello</p>",
		Tag:      "test-tag",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sawHTML, sawJSON bool
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".html":
			sawHTML = true
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			assert.Equal(t, "<p>hello</p>", string(data))
		case ".json":
			sawJSON = true
		}
	}
	assert.True(t, sawHTML)
	assert.True(t, sawJSON)
}

func TestNewPostmarkClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := mailer.NewPostmarkClient(mailer.Config{})
	assert.ErrorIs(t, err, mailer.ErrInvalidConfig)

	_, err = mailer.NewPostmarkClient(mailer.Config{
		PostmarkServerToken:  "srv",
		PostmarkAccountToken: "acc",
		SenderEmail:          "not-an-email",
	})
	assert.ErrorIs(t, err, mailer.ErrInvalidConfig)

	_, err = mailer.NewPostmarkClient(mailer.Config{
		PostmarkServerToken:  "srv",
		PostmarkAccountToken: "acc",
		SenderEmail:          "auth@example.com",
	})
	assert.NoError(t, err)
}

// captureSender records outbound emails for assertions.
type captureSender struct {
	sent []mailer.SendEmailParams
}

func (c *captureSender) SendEmail(ctx context.Context, params mailer.SendEmailParams) error {
	c.sent = append(c.sent, params)
	return nil
}

func TestMessages(t *testing.T) {
	t.Parallel()

	capture := &captureSender{}
	messages := mailer.NewMessages(capture, mailer.Config{
		AppName: "testapp",
		BaseURL: "https://app.example.com",
	})
	ctx := context.Background()

	require.NoError(t, messages.SendMagicLink(ctx, "user@example.com", "tok-1"))
	require.NoError(t, messages.SendEmailVerification(ctx, "user@example.com", "tok-2"))
	require.NoError(t, messages.SendPasswordReset(ctx, "user@example.com", "tok-3"))

	require.Len(t, capture.sent, 3)
	assert.Contains(t, capture.sent[0].BodyHTML, "https://app.example.com/auth/magic-link/verify?token=tok-1")
	assert.Equal(t, "magic-link", capture.sent[0].Tag)
	assert.Contains(t, capture.sent[1].BodyHTML, "/auth/verify-email/confirm?token=tok-2")
	assert.Contains(t, capture.sent[2].BodyHTML, "/auth/password/reset?token=tok-3")
	assert.True(t, strings.Contains(capture.sent[0].Subject, "testapp"))
}
