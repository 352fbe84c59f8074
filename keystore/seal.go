package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	keySize  = 32
)

// Seal encrypts plaintext under a key derived from passphrase, returning
// salt || nonce || ciphertext. Every concrete key adapter's Lock uses
// this to encrypt its private scalar/exponent material before discarding
// the plaintext copy.
func Seal(passphrase, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Seal", err)
	}
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Seal", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Seal", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Seal", err)
	}
	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Open reverses Seal. A wrong passphrase or tampered blob reports
// agenterr.Crypto.
func Open(passphrase, sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize {
		return nil, agenterr.New(agenterr.Crypto, "keystore.Open", "sealed blob truncated")
	}
	salt, rest := sealed[:saltSize], sealed[saltSize:]
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Open", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Open", err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, agenterr.New(agenterr.Crypto, "keystore.Open", "sealed blob truncated")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keystore.Open", err)
	}
	return plaintext, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	// time=1, memory=64MiB, parallelism=4: argon2id defaults recommended
	// by the RFC 9106 low-memory profile.
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}
