package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// NormalizeCost maps out-of-range bcrypt costs to bcrypt.DefaultCost.
func NormalizeCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

// HashPassword returns a bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), NormalizeCost(cost))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyHash hashes a fixed password at cost. Comparing against it makes a
// missing user cost the same as a wrong password, provided cost matches the
// cost real hashes are created with.
func DummyHash(cost int) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte("honestai-dummy-password"), NormalizeCost(cost))
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return hash, nil
}

// BurnPasswordCheck runs a comparison against dummy and discards the result.
func BurnPasswordCheck(dummy []byte, password string) {
	_ = bcrypt.CompareHashAndPassword(dummy, []byte(password))
}
