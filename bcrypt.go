package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptPasswords implements PasswordAuthenticator. A zero Cost uses
// bcrypt.DefaultCost.
type BcryptPasswords struct {
	Cost int
}

var _ PasswordAuthenticator = BcryptPasswords{}

// HashPassword will generate a password hash
func (b BcryptPasswords) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b BcryptPasswords) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword hashes with the default cost
func HashPassword(password string) (string, error) {
	return BcryptPasswords{}.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
