// Package keycipher encrypts custodial account mnemonics at rest.
//
// A failed decryption yields an empty string rather than an error: the
// common case is "wrong secret tried first" inside a Chain, and callers
// that exhaust every cipher convert the empty result into a fault.
package keycipher

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/deptagency/algomart-sub001/fault"
)

// Cipher encrypts and decrypts secrets held at rest.
type Cipher interface {
	Encrypt(plain string) (string, error)
	// Decrypt returns the plaintext, or "" if decryption failed.
	Decrypt(encrypted string) string
}

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// Secretbox derives a key from the app secret with scrypt and seals
// with nacl secretbox. Output layout: base64(salt || nonce || box).
type Secretbox struct {
	secret []byte
}

// NewSecretbox returns a Secretbox cipher keyed by secret.
func NewSecretbox(secret string) *Secretbox {
	return &Secretbox{secret: []byte(secret)}
}

func (c *Secretbox) deriveKey(salt []byte) (*[keySize]byte, error) {
	derived, err := scrypt.Key(c.secret, salt, 32768, 8, 1, keySize)
	if err != nil {
		return nil, fault.Wrap(err)
	}

	var key [keySize]byte
	copy(key[:], derived)
	return &key, nil
}

// Encrypt seals plain under a fresh salt and nonce.
func (c *Secretbox) Encrypt(plain string) (string, error) {
	buf := make([]byte, saltSize+nonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fault.Wrap(err)
	}

	salt := buf[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], buf[saltSize:])

	key, err := c.deriveKey(salt)
	if err != nil {
		return "", err
	}

	sealed := secretbox.Seal(buf, []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an Encrypt output. Any malformed input, wrong secret or
// tampered box yields "".
func (c *Secretbox) Decrypt(encrypted string) string {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil || len(raw) < saltSize+nonceSize {
		return ""
	}

	salt := raw[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	key, err := c.deriveKey(salt)
	if err != nil {
		return ""
	}

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return ""
	}
	return string(plain)
}

// Delegated hands both operations to externally supplied functions,
// e.g. a vault or KMS client owned by the host application.
type Delegated struct {
	EncryptFunc func(plain string) (string, error)
	DecryptFunc func(encrypted string) string
}

func (d *Delegated) Encrypt(plain string) (string, error) {
	if d.EncryptFunc == nil {
		return "", fault.Systemf("delegated cipher has no encrypt function")
	}
	return d.EncryptFunc(plain)
}

func (d *Delegated) Decrypt(encrypted string) string {
	if d.DecryptFunc == nil {
		return ""
	}
	return d.DecryptFunc(encrypted)
}

// Chain composes ciphers: encryption always uses the first, decryption
// tries each in order until one succeeds.
type Chain []Cipher

func (cc Chain) Encrypt(plain string) (string, error) {
	if len(cc) == 0 {
		return "", fault.Systemf("empty cipher chain")
	}
	return cc[0].Encrypt(plain)
}

func (cc Chain) Decrypt(encrypted string) string {
	for _, c := range cc {
		if plain := c.Decrypt(encrypted); plain != "" {
			return plain
		}
	}
	return ""
}
