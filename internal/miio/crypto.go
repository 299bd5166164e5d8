package miio

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5" //nolint:gosec // mandated by the device protocol
	"encoding/hex"
	"errors"
	"fmt"
)

const tokenSize = 16

// cipherSuite holds the key material derived from a device token.
//
//	key = md5(token)
//	iv  = md5(key || token)
type cipherSuite struct {
	token []byte
	key   []byte
	iv    []byte
}

// ParseToken decodes a 32 character hex token.
func ParseToken(s string) ([]byte, error) {
	token, err := hex.DecodeString(s)
	if err != nil || len(token) != tokenSize {
		return nil, fmt.Errorf("%w: want %d hex characters", ErrInvalidToken, tokenSize*2)
	}
	return token, nil
}

func newCipherSuite(token []byte) cipherSuite {
	key := md5Bytes(token)
	iv := md5Bytes(append(append([]byte{}, key...), token...))
	return cipherSuite{token: token, key: key, iv: iv}
}

func (s cipherSuite) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, s.iv).CryptBlocks(out, padded)
	return out, nil
}

func (s cipherSuite) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("invalid cbc ciphertext length")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, s.iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

func md5Bytes(data []byte) []byte {
	sum := md5.Sum(data) //nolint:gosec // mandated by the device protocol
	return sum[:]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - (len(data) % blockSize)
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padding size")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for i := 0; i < pad; i++ {
		if data[len(data)-1-i] != byte(pad) {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
