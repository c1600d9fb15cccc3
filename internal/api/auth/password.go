package auth

import "golang.org/x/crypto/bcrypt"

// passwordCost is lowered in tests.
var passwordCost = bcrypt.DefaultCost

// HashPassword fails for passwords over bcrypt's 72-byte limit.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(hash), err
}

// VerifyPassword never matches an empty hash; Clerk-provisioned accounts have none.
func VerifyPassword(hash, password string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
