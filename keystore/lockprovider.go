package keystore

import (
	"sync"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"golang.org/x/crypto/bcrypt"
)

// BcryptLockProvider is the default, in-memory LockProvider: it stores a
// bcrypt hash of the passphrase and never persists it, so a process
// restart always starts unlocked. It follows the same
// GenerateFromPassword/CompareHashAndPassword pattern the reference
// distribution uses for its own user database.
type BcryptLockProvider struct {
	mu   sync.Mutex
	hash []byte
}

// NewBcryptLockProvider returns a provider with no passphrase recorded
// yet; Lock must be called before Verify will succeed.
func NewBcryptLockProvider() *BcryptLockProvider {
	return &BcryptLockProvider{}
}

// Lock records passphrase's bcrypt hash as the current unlock secret.
func (p *BcryptLockProvider) Lock(passphrase []byte) error {
	hash, err := bcrypt.GenerateFromPassword(passphrase, bcrypt.DefaultCost)
	if err != nil {
		return agenterr.Wrap(agenterr.Crypto, "keystore.BcryptLockProvider.Lock", err)
	}
	p.mu.Lock()
	p.hash = hash
	p.mu.Unlock()
	return nil
}

// Verify checks passphrase against the recorded hash.
func (p *BcryptLockProvider) Verify(passphrase []byte) error {
	p.mu.Lock()
	hash := p.hash
	p.mu.Unlock()
	if hash == nil {
		return agenterr.New(agenterr.Denied, "keystore.BcryptLockProvider.Verify", "no passphrase recorded")
	}
	if err := bcrypt.CompareHashAndPassword(hash, passphrase); err != nil {
		return agenterr.Wrap(agenterr.Denied, "keystore.BcryptLockProvider.Verify", err)
	}
	return nil
}
