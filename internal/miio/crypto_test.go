package miio

import (
	"bytes"
	"crypto/md5" //nolint:gosec // test mirrors the protocol derivation
	"errors"
	"testing"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{testTokenHex, false},
		{"00112233", true},
		{"zz112233445566778899aabbccddeeff", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := ParseToken(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseToken(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q) error = %v, want ErrInvalidToken", tt.in, err)
		}
	}
}

func TestCipherSuite_KeyDerivation(t *testing.T) {
	token := testToken(t)
	suite := newCipherSuite(token)

	key := md5.Sum(token) //nolint:gosec // protocol derivation
	if !bytes.Equal(suite.key, key[:]) {
		t.Error("key should be md5(token)")
	}
	iv := md5.Sum(append(key[:], token...)) //nolint:gosec // protocol derivation
	if !bytes.Equal(suite.iv, iv[:]) {
		t.Error("iv should be md5(key || token)")
	}
	if len(token) != tokenSize {
		t.Errorf("token length %d", len(token))
	}
}

func TestCipherSuite_RoundTrip(t *testing.T) {
	suite := newCipherSuite(testToken(t))

	for _, plain := range [][]byte{
		[]byte(`{"id":1,"method":"get_prop","params":["power"]}`),
		[]byte("0123456789abcdef"), // exactly one block, gains a full pad block
		{},
	} {
		ciphertext, err := suite.encrypt(plain)
		if err != nil {
			t.Fatalf("encrypt() error = %v", err)
		}
		if len(ciphertext)%16 != 0 || len(ciphertext) <= len(plain) {
			t.Errorf("ciphertext length %d for %d plaintext bytes", len(ciphertext), len(plain))
		}
		back, err := suite.decrypt(ciphertext)
		if err != nil {
			t.Fatalf("decrypt() error = %v", err)
		}
		if !bytes.Equal(back, plain) {
			t.Errorf("round trip = %q, want %q", back, plain)
		}
	}
}

func TestCipherSuite_DecryptErrors(t *testing.T) {
	suite := newCipherSuite(testToken(t))

	if _, err := suite.decrypt(make([]byte, 15)); err == nil {
		t.Error("decrypt() should reject partial blocks")
	}
	if _, err := suite.decrypt(nil); err == nil {
		t.Error("decrypt() should reject empty input")
	}

	other := newCipherSuite(bytes.Repeat([]byte{0x42}, tokenSize))
	ciphertext, _ := other.encrypt([]byte("hello"))
	if back, err := suite.decrypt(ciphertext); err == nil && bytes.Equal(back, []byte("hello")) {
		t.Error("decrypt() with the wrong key must not recover the plaintext")
	}
}

func TestPKCS7(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 8)
	if !bytes.Equal(padded, []byte("abc\x05\x05\x05\x05\x05")) {
		t.Errorf("pkcs7Pad() = %q", padded)
	}
	back, err := pkcs7Unpad(padded, 8)
	if err != nil || string(back) != "abc" {
		t.Errorf("pkcs7Unpad() = %q, %v", back, err)
	}
	if _, err := pkcs7Unpad([]byte("abc\x05\x05\x05\x05\x04"), 8); err == nil {
		t.Error("pkcs7Unpad() should reject inconsistent padding")
	}
}
