// Package auth covers the credential surface of the scaffold: bcrypt
// password hashing, opaque API access tokens, and signed session tokens.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently truncates input past 72 bytes, so longer passwords are
// refused instead of weakened.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned when the password exceeds what bcrypt can
// hash without truncation.
var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

// HashPassword derives a bcrypt hash of the password at the default cost.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
