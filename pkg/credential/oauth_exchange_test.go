package credential

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestClassifyExchangeError(t *testing.T) {
	t.Parallel()

	t.Run("rejected code is a client error", func(t *testing.T) {
		t.Parallel()

		err := classifyExchangeError(&oauth2.RetrieveError{
			Response: &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"},
			Body:     []byte(`{"error":"bad_verification_code"}`),
		})
		assert.ErrorIs(t, err, ErrInvalidCode)
		assert.NotErrorIs(t, err, ErrProvider)
	})

	t.Run("provider 5xx is an upstream fault", func(t *testing.T) {
		t.Parallel()

		err := classifyExchangeError(&oauth2.RetrieveError{
			Response: &http.Response{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"},
		})
		assert.ErrorIs(t, err, ErrProvider)
		assert.NotErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("network failure is an upstream fault", func(t *testing.T) {
		t.Parallel()

		err := classifyExchangeError(errors.New("dial tcp: i/o timeout"))
		assert.ErrorIs(t, err, ErrProvider)
		assert.NotErrorIs(t, err, ErrInvalidCode)
	})
}
