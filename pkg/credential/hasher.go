package credential

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher is the pluggable password-hashing strategy. Implementations must be
// timing-safe on comparison.
type Hasher interface {
	Hash(password string) ([]byte, error)
	// Compare returns nil when the password matches the hash. Any
	// mismatch or malformed hash is an error; callers map it to the
	// generic ErrInvalidCredentials.
	Compare(hash []byte, password string) error
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. A cost outside bcrypt's valid
// range falls back to the default cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), h.cost)
}

func (h *BcryptHasher) Compare(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
