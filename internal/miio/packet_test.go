package miio

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

const testTokenHex = "00112233445566778899aabbccddeeff"

func testToken(t *testing.T) []byte {
	t.Helper()
	token, err := ParseToken(testTokenHex)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	return token
}

func TestHelloPacket(t *testing.T) {
	want, _ := hex.DecodeString("21310020" + "ffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	if got := helloPacket(); !bytes.Equal(got, want) {
		t.Errorf("helloPacket() = %x, want %x", got, want)
	}

	h, payload, err := decodePacket(helloPacket())
	if err != nil {
		t.Fatalf("decodePacket(hello) error = %v", err)
	}
	if !h.IsHello() || len(payload) != 0 {
		t.Errorf("hello decoded as %+v with %d payload bytes", h, len(payload))
	}
}

func TestEncodeDecodePacket(t *testing.T) {
	token := testToken(t)
	ciphertext := bytes.Repeat([]byte{0xAB}, 32)

	data, err := encodePacket(0x01020304, 77, token, ciphertext)
	if err != nil {
		t.Fatalf("encodePacket() error = %v", err)
	}
	if len(data) != headerSize+len(ciphertext) {
		t.Fatalf("len = %d, want %d", len(data), headerSize+len(ciphertext))
	}

	h, payload, err := decodePacket(data)
	if err != nil {
		t.Fatalf("decodePacket() error = %v", err)
	}
	if h.DeviceID != 0x01020304 || h.Stamp != 77 || h.Unknown != 0 {
		t.Errorf("header = %+v", h)
	}
	if h.IsHello() {
		t.Error("data packet reported as hello")
	}
	if !bytes.Equal(payload, ciphertext) {
		t.Error("payload mismatch")
	}
	if !verifyChecksum(data, token) {
		t.Error("checksum should verify with the same token")
	}

	other, _ := ParseToken("ffeeddccbbaa99887766554433221100")
	if verifyChecksum(data, other) {
		t.Error("checksum should not verify with another token")
	}

	data[len(data)-1] ^= 0xFF
	if verifyChecksum(data, token) {
		t.Error("checksum should not verify after tampering")
	}
}

func TestDecodePacket_Errors(t *testing.T) {
	good, err := encodePacket(1, 1, testToken(t), make([]byte, 16))
	if err != nil {
		t.Fatalf("encodePacket() error = %v", err)
	}

	badMagic := append([]byte{}, good...)
	badMagic[0] = 0x00

	badLength := append([]byte{}, good...)
	badLength = append(badLength, 0x00)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:10]},
		{"bad magic", badMagic},
		{"length mismatch", badLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := decodePacket(tt.data); !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("decodePacket() error = %v, want ErrMalformedPacket", err)
			}
		})
	}
}

func TestEncodePacket_TooLarge(t *testing.T) {
	if _, err := encodePacket(1, 1, testToken(t), make([]byte, maxPacketLen)); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("encodePacket() error = %v, want ErrMalformedPacket", err)
	}
}
