package session_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/session"
)

func TestCookieTransport(t *testing.T) {
	t.Parallel()

	transport := session.NewCookieTransport("sid", true)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, transport.SetToken(w, "tok-123", time.Hour))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "sid", cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)

		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(cookies[0])

		token, err := transport.GetToken(r)
		require.NoError(t, err)
		assert.Equal(t, "tok-123", token)
	})

	t.Run("missing cookie", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		_, err := transport.GetToken(r)
		assert.ErrorIs(t, err, session.ErrNoToken)
	})

	t.Run("clear expires the cookie", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, transport.ClearToken(w))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Negative(t, cookies[0].MaxAge)
	})
}

func TestHeaderTransport(t *testing.T) {
	t.Parallel()

	transport := session.NewHeaderTransport()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer token", header: "Bearer tok-abc", want: "tok-abc"},
		{name: "case-insensitive scheme", header: "bearer tok-abc", want: "tok-abc"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcg==", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			token, err := transport.GetToken(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, session.ErrNoToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestCompositeTransport(t *testing.T) {
	t.Parallel()

	transport := session.NewCompositeTransport(
		session.NewHeaderTransport(),
		session.NewCookieTransport("sid", false),
	)

	t.Run("header wins when both present", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, transport.SetToken(w, "from-cookie", time.Hour))

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		for _, c := range w.Result().Cookies() {
			r.AddCookie(c)
		}

		token, err := transport.GetToken(r)
		require.NoError(t, err)
		assert.Equal(t, "from-header", token)
	})

	t.Run("falls back to cookie", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, transport.SetToken(w, "from-cookie", time.Hour))

		r := httptest.NewRequest("GET", "/", nil)
		for _, c := range w.Result().Cookies() {
			r.AddCookie(c)
		}

		token, err := transport.GetToken(r)
		require.NoError(t, err)
		assert.Equal(t, "from-cookie", token)
	})

	t.Run("no token anywhere", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		_, err := transport.GetToken(r)
		assert.ErrorIs(t, err, session.ErrNoToken)
	})
}
