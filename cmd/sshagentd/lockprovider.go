package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"golang.org/x/crypto/bcrypt"
)

// bcryptLockProvider is the default keystore.LockProvider: it persists a
// single bcrypt hash of the current lock passphrase to a JSON file,
// following the same load-on-construct / atomic-write-on-save shape the
// teacher's usermgmt.UserDB uses for its user records.
type bcryptLockProvider struct {
	mu   sync.Mutex
	path string
	hash string
}

type lockDBFile struct {
	Hash string `json:"hash"`
}

func newBcryptLockProvider(path string) (*bcryptLockProvider, error) {
	p := &bcryptLockProvider{path: path}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *bcryptLockProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var f lockDBFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	p.hash = f.Hash
	return nil
}

func (p *bcryptLockProvider) save() error {
	data, err := json.MarshalIndent(lockDBFile{Hash: p.hash}, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Lock implements keystore.LockProvider.
func (p *bcryptLockProvider) Lock(passphrase []byte) error {
	hash, err := bcrypt.GenerateFromPassword(passphrase, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hash = string(hash)
	return p.save()
}

// Verify implements keystore.LockProvider.
func (p *bcryptLockProvider) Verify(passphrase []byte) error {
	p.mu.Lock()
	hash := p.hash
	p.mu.Unlock()
	if hash == "" {
		return agenterr.New(agenterr.Denied, "sshagentd.bcryptLockProvider.Verify", "no passphrase has been set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), passphrase); err != nil {
		return agenterr.Wrap(agenterr.Denied, "sshagentd.bcryptLockProvider.Verify", err)
	}
	return nil
}

// pamLockProvider verifies the lock passphrase against a system account's
// password via PAM instead of a passphrase file, the same call shape the
// teacher's ssh/auth.go pamAuth uses for SSH password authentication. It
// has no notion of setting a system password, so Lock only checks that the
// account can currently authenticate before flipping the manager locked.
type pamLockProvider struct {
	service  string
	username string
	pamAuth  func(service, user, password string) bool
}

func newPAMLockProvider(username string) *pamLockProvider {
	return &pamLockProvider{service: "sshagentd", username: username, pamAuth: pamAuthenticate}
}

func (p *pamLockProvider) Lock(passphrase []byte) error {
	return p.Verify(passphrase)
}

func (p *pamLockProvider) Verify(passphrase []byte) error {
	if !p.pamAuth(p.service, p.username, string(passphrase)) {
		return agenterr.New(agenterr.Denied, "sshagentd.pamLockProvider.Verify", fmt.Sprintf("PAM authentication failed for %s", p.username))
	}
	return nil
}
