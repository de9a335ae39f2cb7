package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

const keySize = 32 // AES-256

// Cipher encrypts and decrypts message bodies with AES-256-CBC. The
// envelope format is hex(iv) + ":" + hex(ciphertext). Decrypt is tolerant:
// anything that does not parse as a valid envelope is returned unchanged,
// so rows written before encryption was introduced keep displaying.
type Cipher struct {
	key []byte
}

// NewCipher derives a Cipher from the configured key string, padded with
// '0' to or truncated at 32 bytes.
func NewCipher(key string) *Cipher {
	if len(key) < keySize {
		key += strings.Repeat("0", keySize-len(key))
	}
	return &Cipher{key: []byte(key[:keySize])}
}

// Encrypt encrypts plaintext into an envelope. Empty input is returned
// as-is so image-only messages with no text are representable.
func (c *Cipher) Encrypt(plaintext string) string {
	if plaintext == "" {
		return plaintext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return plaintext
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return plaintext
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted)
}

// Decrypt reverses Encrypt. On any failure the stored value is returned
// unchanged rather than an error.
func (c *Cipher) Decrypt(stored string) string {
	if stored == "" {
		return stored
	}

	parts := strings.Split(stored, ":")
	if len(parts) != 2 {
		return stored // probably not encrypted
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return stored
	}
	encrypted, err := hex.DecodeString(parts[1])
	if err != nil || len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return stored
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return stored
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	unpadded, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return stored
	}
	return string(unpadded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
