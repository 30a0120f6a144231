package auth

import "testing"

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-password" {
		t.Fatal("hash must not equal the password")
	}
	if !VerifyPassword(hash, "s3cret-password") {
		t.Fatal("expected verification to succeed")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Fatal("expected verification to fail for wrong password")
	}
	if VerifyPassword("", "s3cret-password") {
		t.Fatal("expected verification to fail for empty hash")
	}
	if VerifyPassword("not-a-bcrypt-hash", "s3cret-password") {
		t.Fatal("expected verification to fail for malformed hash")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}
