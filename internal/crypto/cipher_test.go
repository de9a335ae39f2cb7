package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher("unit-test-key")

	for _, plaintext := range []string{
		"hello",
		"a longer message with spaces and punctuation, even some unicode: héllo wörld",
		"x",
		strings.Repeat("block-aligned-16", 4),
	} {
		stored := c.Encrypt(plaintext)
		require.NotEqual(t, plaintext, stored)
		assert.Contains(t, stored, ":")
		assert.Equal(t, plaintext, c.Decrypt(stored))
	}
}

func TestEncryptEmptyPassthrough(t *testing.T) {
	c := NewCipher("unit-test-key")
	assert.Equal(t, "", c.Encrypt(""))
	assert.Equal(t, "", c.Decrypt(""))
}

func TestEncryptProducesFreshIV(t *testing.T) {
	c := NewCipher("unit-test-key")
	first := c.Encrypt("same message")
	second := c.Encrypt("same message")
	assert.NotEqual(t, first, second)
}

func TestDecryptTolerantOfPlaintextRows(t *testing.T) {
	c := NewCipher("unit-test-key")

	// Rows written before encryption was introduced come back unchanged.
	for _, stored := range []string{
		"just a plain old message",
		"has:a:colon:but:is:not:an:envelope",
		"deadbeef:nothex!!",
		"abcd:deadbeef", // iv too short
	} {
		assert.Equal(t, stored, c.Decrypt(stored))
	}
}

func TestDecryptWithWrongKeyNeverRecoversPlaintext(t *testing.T) {
	stored := NewCipher("key-one").Encrypt("secret")
	assert.NotEqual(t, "secret", NewCipher("key-two").Decrypt(stored))
}

func TestKeyPaddedToFullLength(t *testing.T) {
	short := NewCipher("abc")
	long := NewCipher("abc" + strings.Repeat("0", 29))
	stored := short.Encrypt("padded key equivalence")
	assert.Equal(t, "padded key equivalence", long.Decrypt(stored))
}
