package security

import "testing"

func TestHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !VerifyPassword(hash, "secret1") {
		t.Fatalf("expected hash to verify against original password")
	}
}

func TestHashIsSalted(t *testing.T) {
	h1, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	h2, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if h1 == h2 {
		t.Fatalf("two hashes of the same password must differ, both were %q", h1)
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("secret2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if VerifyPassword(hash, "secret1") {
		t.Fatalf("wrong password must not verify")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	for _, bad := range []string{"", "not-a-bcrypt-hash", "$2a$garbage"} {
		if VerifyPassword(bad, "whatever") {
			t.Errorf("malformed hash %q must verify as false", bad)
		}
	}
}
