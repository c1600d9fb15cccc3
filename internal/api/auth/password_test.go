package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashing(t *testing.T) {
	prev := passwordCost
	passwordCost = bcrypt.MinCost
	t.Cleanup(func() { passwordCost = prev })

	hash, err := HashPassword("grudge-match!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "" || hash == "grudge-match!" {
		t.Fatalf("unexpected hash %q", hash)
	}

	checks := []struct {
		hash, password string
		want           bool
	}{
		{hash, "grudge-match!", true},
		{hash, "grudge-match", false},
		{"not-a-valid-hash", "grudge-match!", false},
		{"", "", false},
	}
	for _, c := range checks {
		if got := VerifyPassword(c.hash, c.password); got != c.want {
			t.Errorf("VerifyPassword(%q, %q) = %v, want %v", c.hash, c.password, got, c.want)
		}
	}

	if _, err := HashPassword(strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected an error past the 72-byte limit")
	}
}
