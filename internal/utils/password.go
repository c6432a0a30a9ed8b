package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a user password with bcrypt.  cost is clamped to
// bcrypt's accepted range, so a misconfigured BCRYPT_COST cannot make
// registration fail.  Passwords over 72 bytes yield bcrypt.ErrPasswordTooLong.
func HashPassword(plain string, cost int) (string, error) {
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
