// Package secure provides at-rest encryption for the access/refresh token
// bytes held in model.Credentials. No example in the retrieved corpus names
// a third-party envelope-encryption library for this — every teacher that
// stores a credential does so as an opaque "encrypted" blob without naming
// how — so this wraps the standard library's AES-GCM directly.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/m-mizutani/goerr/v2"
)

// KeySize is the required length, in bytes, of keys passed to New.
const KeySize = 32

// Box encrypts and decrypts credential bytes with a single AES-256-GCM key.
type Box struct {
	gcm cipher.AEAD
}

// New builds a Box from a 32-byte key (e.g. loaded from CREDENTIALS_KEY).
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, goerr.Wrap(ErrInvalidKeySize, "build credential box", goerr.V("len", len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, goerr.Wrap(err, "new aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "new gcm")
	}
	return &Box{gcm: gcm}, nil
}

// ErrInvalidKeySize is returned by New when key is not KeySize bytes.
var ErrInvalidKeySize = goerr.New("credential key must be 32 bytes")

// Seal encrypts plaintext, prefixing the result with a random nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerr.Wrap(err, "read nonce")
	}
	return b.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal.
func (b *Box) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	n := b.gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, goerr.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:n], ciphertext[n:]
	plain, err := b.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "open ciphertext")
	}
	return plain, nil
}
