package security

import "golang.org/x/crypto/bcrypt"

// Matches the original deployment's cost; each call salts independently so
// equal passwords never share a hash.
const bcryptCost = 10

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword reports whether plain matches hash. Comparison inside
// bcrypt is constant-time; malformed hashes verify as false rather than
// erroring, so callers get a single rejection path.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
