package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a plaintext password at the default bcrypt cost.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword reports a non-nil error when plain does not match hashed.
func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
