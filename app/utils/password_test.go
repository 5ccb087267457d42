package utils

import "testing"

func TestVerifyPassword_Bcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	if !VerifyPassword("s3cret", hash) {
		t.Fatalf("correct password should verify")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatalf("wrong password must not verify")
	}
}

func TestVerifyPassword_Plaintext(t *testing.T) {
	if !VerifyPassword("admin123", "admin123") {
		t.Fatalf("matching plaintext should verify")
	}
	if VerifyPassword("admin123", "other") {
		t.Fatalf("mismatched plaintext must not verify")
	}
	if VerifyPassword("", "") != true {
		t.Fatalf("empty plaintext comparison should match")
	}
}
