package session

import (
	"net/http"
	"time"
)

// CompositeTransport chains transports: GetToken returns the first token
// found, writes go to all transports. Typical use is bearer-header lookup
// with cookie fallback, serving API and browser clients from one engine.
type CompositeTransport struct {
	transports []Transport
}

// NewCompositeTransport creates a transport that tries each given transport
// in order.
func NewCompositeTransport(transports ...Transport) *CompositeTransport {
	return &CompositeTransport{transports: transports}
}

// GetToken returns the token from the first transport that finds one.
func (t *CompositeTransport) GetToken(r *http.Request) (string, error) {
	for _, transport := range t.transports {
		if token, err := transport.GetToken(r); err == nil {
			return token, nil
		}
	}
	return "", ErrNoToken
}

// SetToken sends the token via every transport.
func (t *CompositeTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	for _, transport := range t.transports {
		if err := transport.SetToken(w, token, ttl); err != nil {
			return err
		}
	}
	return nil
}

// ClearToken clears the token via every transport.
func (t *CompositeTransport) ClearToken(w http.ResponseWriter) error {
	for _, transport := range t.transports {
		if err := transport.ClearToken(w); err != nil {
			return err
		}
	}
	return nil
}
