package auth

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedToken indicates an access token without the id|secret shape.
var ErrMalformedToken = errors.New("malformed access token")

// AccessToken is an opaque API credential. The client holds "id|secret";
// storage holds the record id alongside the bcrypt hash of the secret, so a
// leaked token table reveals nothing usable.
type AccessToken struct {
	ID     string // token record identifier
	Secret string // plain secret, shown to the client once
	Hash   string // bcrypt hash of the secret, persisted
}

// Token returns the client-facing credential string.
func (t *AccessToken) Token() string {
	return t.ID + "|" + t.Secret
}

// NewAccessToken mints an access token for the given record id.
func NewAccessToken(id string) (*AccessToken, error) {
	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AccessToken{ID: id, Secret: secret, Hash: string(hash)}, nil
}

// SplitAccessToken parses a client credential back into record id and plain
// secret.
func SplitAccessToken(token string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(token, "|")
	if !ok || id == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	return id, secret, nil
}

// VerifyAccessToken reports whether the plain secret matches the stored hash.
func VerifyAccessToken(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
