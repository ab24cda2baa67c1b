package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and checks account secrets with bcrypt
type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher; a cost outside bcrypt's range falls back to 10
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 10
	}
	return &Hasher{cost: cost}
}

// HashPassword hashes a password using bcrypt
func (h *Hasher) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func (h *Hasher) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
