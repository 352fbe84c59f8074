package keystore

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PubKeyItem is the flattened, exported view of a key returned by
// ListKeys: enough for an identities-answer response without leaking the
// Key interface itself.
type PubKeyItem struct {
	Fingerprint string
	Type        string
	Comment     string
	Blob        []byte
}

// Observer receives lifecycle notifications from a KeyManager. Every
// callback runs synchronously on the goroutine that triggered it and
// must not call back into the KeyManager. Callbacks are invoked with the
// manager's mutex released, over a snapshot of the observer set taken
// when the event is emitted.
type Observer interface {
	OnKeyAdded(key Key)
	OnKeyPreRemove(key Key)
	OnKeyRemoved(fingerprint string)
	OnKeysCleared()
	OnKeyUsed(key Key, session BindingSource)
	OnKeyDeclined(key Key, session BindingSource)
	OnLocked()
	OnUnlocked()
}

// LockProvider verifies the passphrase used to lock and unlock the whole
// key manager. It is independent of any per-key encryption: the manager
// asks the provider to check the passphrase itself, then asks each key to
// encrypt or decrypt its own private material with the same passphrase.
type LockProvider interface {
	// Lock records passphrase as the current unlock secret.
	Lock(passphrase []byte) error
	// Verify reports an error (agenterr.Denied) if passphrase does not
	// match the recorded secret.
	Verify(passphrase []byte) error
}

// KeyManager holds the agent's identities: it indexes them by public-key
// blob, enforces lifetime expiry and destination constraints, and gates
// all of them behind an optional passphrase lock with a brute-force
// backoff on repeated failed unlocks.
type KeyManager struct {
	mu             sync.Mutex
	keys           []Key
	locked         bool
	observers      map[Observer]struct{}
	failedAttempts int
	lockedUntil    time.Time
	lockProvider   LockProvider
	factory        *KeyFactory
	log            zerolog.Logger
}

// NewKeyManager returns an empty manager backed by factory. Pass
// keystore.DefaultFactory unless the caller maintains its own registry.
func NewKeyManager(factory *KeyFactory) *KeyManager {
	return &KeyManager{
		observers: make(map[Observer]struct{}),
		factory:   factory,
		log:       log.With().Str("component", "KeyManager").Logger(),
	}
}

// SetLockProvider installs the passphrase verifier used by Lock/Unlock.
func (m *KeyManager) SetLockProvider(p LockProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockProvider = p
}

// RegisterObserver subscribes o to lifecycle events.
func (m *KeyManager) RegisterObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers[o] = struct{}{}
}

// UnregisterObserver removes a previously registered observer.
func (m *KeyManager) UnregisterObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, o)
}

// Keys returns a snapshot of every held key, in insertion order.
func (m *KeyManager) Keys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Key, len(m.keys))
	copy(out, m.keys)
	return out
}

// Locked reports whether the manager is currently passphrase-locked.
func (m *KeyManager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

func (m *KeyManager) findKeyLocked(blob []byte) int {
	for i, k := range m.keys {
		if bytes.Equal(k.PubBlob(), blob) {
			return i
		}
	}
	return -1
}

// AddKey validates and stores an unconstrained key. Adding a key whose
// public blob already exists silently replaces the previous entry, the
// same "last write wins" semantics the reference implementation uses.
func (m *KeyManager) AddKey(keyType string, blob []byte, comment string) (Key, error) {
	return m.addKey(keyType, blob, comment, 0, false, nil)
}

// AddConstrainedKey is AddKey plus the constraint fields carried by
// SSH_AGENTC_ADD_IDENTITY_CONSTRAINED: a lifetime (0 means none), whether
// use of the key requires out-of-band confirmation, and any destination
// constraints parsed from a restrict-destination extension.
func (m *KeyManager) AddConstrainedKey(keyType string, blob []byte, comment string, lifetimeSeconds uint32, confirmRequired bool, destConstraints []DestinationConstraint) (Key, error) {
	return m.addKey(keyType, blob, comment, lifetimeSeconds, confirmRequired, destConstraints)
}

func (m *KeyManager) addKey(keyType string, blob []byte, comment string, lifetimeSeconds uint32, confirmRequired bool, destConstraints []DestinationConstraint) (Key, error) {
	if _, err := m.factory.ExtractPubKey(keyType, blob); err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keystore.KeyManager.AddKey", err)
	}
	key, err := m.factory.CreateKey(keyType, blob, comment)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keystore.KeyManager.AddKey", err)
	}
	if lifetimeSeconds > 0 {
		key.SetLifetime(lifetimeSeconds)
	}
	key.SetConfirmRequired(confirmRequired)
	if len(destConstraints) > 0 {
		key.SetDestConstraints(destConstraints)
	}

	m.mu.Lock()
	if i := m.findKeyLocked(key.PubBlob()); i >= 0 {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
	m.keys = append(m.keys, key)
	m.mu.Unlock()

	m.emitKeyAdded(key)
	return key, nil
}

// RemoveKey drops the key with the given public blob. Removing a blob
// that isn't held is a no-op, not an error.
func (m *KeyManager) RemoveKey(blob []byte) error {
	m.mu.Lock()
	i := m.findKeyLocked(blob)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	key := m.keys[i]
	m.mu.Unlock()

	m.emitKeyPreRemove(key)

	m.mu.Lock()
	i = m.findKeyLocked(blob)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	fingerprint := key.PublicKey().Fingerprint(Sha256Base64)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.mu.Unlock()

	m.emitKeyRemoved(fingerprint)
	return nil
}

// RemoveAllKeys drops every key, notifying observers in three phases:
// pre-remove for every key (in order), the drop itself, then a removed
// notification per key (fingerprints captured before the drop) and
// finally a single cleared notification.
func (m *KeyManager) RemoveAllKeys() {
	m.mu.Lock()
	snapshot := make([]Key, len(m.keys))
	copy(snapshot, m.keys)
	m.mu.Unlock()

	for _, k := range snapshot {
		m.emitKeyPreRemove(k)
	}

	fingerprints := make([]string, len(snapshot))
	for i, k := range snapshot {
		fingerprints[i] = k.PublicKey().Fingerprint(Sha256Base64)
	}

	m.mu.Lock()
	m.keys = nil
	m.mu.Unlock()

	for _, fp := range fingerprints {
		m.emitKeyRemoved(fp)
	}
	m.emitKeysCleared()
}

// ListKeys returns every key permitted for session, formatted for an
// identities-answer response.
func (m *KeyManager) ListKeys(session BindingSource) []PubKeyItem {
	keys := m.Keys()
	items := make([]PubKeyItem, 0, len(keys))
	for _, k := range keys {
		if !k.Permitted(session, "", nil) {
			continue
		}
		items = append(items, PubKeyItem{
			Fingerprint: k.PublicKey().Fingerprint(Sha256Base64),
			Type:        k.Type(),
			Comment:     k.Comment(),
			Blob:        k.PubBlob(),
		})
	}
	return items
}

// SignData signs data with the key identified by keyBlob.
func (m *KeyManager) SignData(keyBlob, data []byte, flags uint32) ([]byte, error) {
	key, ok := m.GetKey(keyBlob)
	if !ok {
		return nil, agenterr.New(agenterr.NotFound, "keystore.KeyManager.SignData", "key not found")
	}
	return key.Sign(data, flags)
}

// CleanupExpiredKeys drops every key whose lifetime has elapsed. Callers
// are expected to run it periodically (the reference implementation
// suggests every second).
func (m *KeyManager) CleanupExpiredKeys() {
	for _, k := range m.Keys() {
		if k.Expired() {
			_ = m.RemoveKey(k.PubBlob())
		}
	}
}

// GetKey looks up a key by its public blob.
func (m *KeyManager) GetKey(blob []byte) (Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.findKeyLocked(blob); i >= 0 {
		return m.keys[i], true
	}
	return nil, false
}

// GetKeyByFingerprint looks up a key by its default-format fingerprint.
func (m *KeyManager) GetKeyByFingerprint(fingerprint string) (Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.PublicKey().Fingerprint(Sha256Base64) == fingerprint {
			return k, true
		}
	}
	return nil, false
}

// Lock passphrase-protects every held key. It requires a LockProvider to
// have been configured; calling it without one is a configuration bug
// and panics rather than silently no-opping.
func (m *KeyManager) Lock(passphrase []byte) error {
	m.mu.Lock()
	if m.lockProvider == nil {
		m.mu.Unlock()
		panic("keystore: KeyManager.Lock called with no LockProvider configured")
	}
	if m.locked {
		m.mu.Unlock()
		return agenterr.New(agenterr.InvalidState, "keystore.KeyManager.Lock", "already locked")
	}
	provider := m.lockProvider
	keys := make([]Key, len(m.keys))
	copy(keys, m.keys)
	m.mu.Unlock()

	if err := provider.Lock(passphrase); err != nil {
		return agenterr.Wrap(agenterr.Crypto, "keystore.KeyManager.Lock", err)
	}
	for _, k := range keys {
		if err := k.Lock(passphrase); err != nil {
			return agenterr.Wrap(agenterr.Crypto, "keystore.KeyManager.Lock", err)
		}
	}

	m.mu.Lock()
	m.locked = true
	m.mu.Unlock()
	m.emitLocked()
	return nil
}

// Unlock reverses Lock. Repeated failed attempts trigger an exponential
// backoff: once more than two attempts have failed, further attempts
// within floor(1.8^failedAttempts) seconds of the last failure are
// refused without even checking the passphrase, and still count as a
// failure.
func (m *KeyManager) Unlock(passphrase []byte) error {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		return agenterr.New(agenterr.InvalidState, "keystore.KeyManager.Unlock", "not locked")
	}
	if m.lockProvider == nil {
		m.mu.Unlock()
		panic("keystore: KeyManager.Unlock called with no LockProvider configured")
	}
	now := time.Now()
	if now.Before(m.lockedUntil) {
		m.failedAttempts++
		wait := int(math.Ceil(m.lockedUntil.Sub(now).Seconds()))
		m.mu.Unlock()
		return agenterr.New(agenterr.Throttled, "keystore.KeyManager.Unlock", fmt.Sprintf("please wait %d seconds", wait))
	}
	provider := m.lockProvider
	keys := make([]Key, len(m.keys))
	copy(keys, m.keys)
	m.mu.Unlock()

	if err := m.tryUnlock(provider, keys, passphrase); err != nil {
		m.mu.Lock()
		m.failedAttempts++
		if m.failedAttempts > 2 {
			backoff := time.Duration(math.Floor(math.Pow(1.8, float64(m.failedAttempts)))) * time.Second
			m.lockedUntil = time.Now().Add(backoff)
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.locked = false
	m.failedAttempts = 0
	m.mu.Unlock()
	m.emitUnlocked()
	return nil
}

func (m *KeyManager) tryUnlock(provider LockProvider, keys []Key, passphrase []byte) error {
	if err := provider.Verify(passphrase); err != nil {
		return agenterr.Wrap(agenterr.Denied, "keystore.KeyManager.Unlock", err)
	}
	for _, k := range keys {
		if err := k.Unlock(passphrase); err != nil {
			return agenterr.Wrap(agenterr.Crypto, "keystore.KeyManager.Unlock", err)
		}
	}
	return nil
}

// EmitKeyUsed notifies observers that key was used to sign in session.
// Exported because the session layer, not the manager itself, knows when
// a signature actually completes.
func (m *KeyManager) EmitKeyUsed(key Key, session BindingSource) {
	for o := range m.observerSnapshot() {
		o.OnKeyUsed(key, session)
	}
}

// EmitKeyDeclined notifies observers that a confirmation prompt for key
// was declined in session.
func (m *KeyManager) EmitKeyDeclined(key Key, session BindingSource) {
	for o := range m.observerSnapshot() {
		o.OnKeyDeclined(key, session)
	}
}

func (m *KeyManager) observerSnapshot() map[Observer]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Observer]struct{}, len(m.observers))
	for o := range m.observers {
		out[o] = struct{}{}
	}
	return out
}

func (m *KeyManager) emitKeyAdded(key Key) {
	for o := range m.observerSnapshot() {
		o.OnKeyAdded(key)
	}
}

func (m *KeyManager) emitKeyPreRemove(key Key) {
	for o := range m.observerSnapshot() {
		o.OnKeyPreRemove(key)
	}
}

func (m *KeyManager) emitKeyRemoved(fingerprint string) {
	for o := range m.observerSnapshot() {
		o.OnKeyRemoved(fingerprint)
	}
}

func (m *KeyManager) emitKeysCleared() {
	for o := range m.observerSnapshot() {
		o.OnKeysCleared()
	}
}

func (m *KeyManager) emitLocked() {
	for o := range m.observerSnapshot() {
		o.OnLocked()
	}
}

func (m *KeyManager) emitUnlocked() {
	for o := range m.observerSnapshot() {
		o.OnUnlocked()
	}
}
