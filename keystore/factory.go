package keystore

import (
	"sync"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// CreateKeyFunc builds a private Key from its wire blob and comment.
type CreateKeyFunc func(blob []byte, comment string) (Key, error)

// ExtractPubKeyFunc pulls the public-key blob out of a private-key blob,
// used to validate and index a key before its adapter fully parses it.
type ExtractPubKeyFunc func(blob []byte) ([]byte, error)

// SkipBlobFunc advances a decoder past a type-specific key blob without
// interpreting it, used when locating the raw bytes of an embedded blob.
type SkipBlobFunc func(d *wire.Decoder) error

// CreatePubKeyFunc builds a PublicKey from a public-key blob whose type
// has already been read.
type CreatePubKeyFunc func(keyType string, blob []byte) (*PublicKey, error)

type keyTypeEntry struct {
	create     CreateKeyFunc
	extractPub ExtractPubKeyFunc
	skip       SkipBlobFunc
}

// KeyFactory is a registry mapping SSH key-type names (e.g. "ssh-ed25519")
// to the adapter functions that know how to parse, skip and construct
// keys of that type. Concrete adapters register themselves with the
// package-level DefaultFactory during init.
type KeyFactory struct {
	mu           sync.RWMutex
	keyTypes     map[string]keyTypeEntry
	pubKeyTypes  map[string]CreatePubKeyFunc
}

// NewKeyFactory returns an empty registry.
func NewKeyFactory() *KeyFactory {
	return &KeyFactory{
		keyTypes:    make(map[string]keyTypeEntry),
		pubKeyTypes: make(map[string]CreatePubKeyFunc),
	}
}

// DefaultFactory is the registry concrete key adapters register
// themselves into and the one KeyManager uses unless told otherwise.
var DefaultFactory = NewKeyFactory()

// RegisterKeyType registers a private-key adapter. It panics if the type
// name is already registered, mirroring the reference implementation's
// fail-fast behavior for duplicate registration, which can only happen
// due to a programming error at init time.
func (f *KeyFactory) RegisterKeyType(keyType string, create CreateKeyFunc, extractPub ExtractPubKeyFunc, skip SkipBlobFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.keyTypes[keyType]; exists {
		panic("keystore: key type already registered: " + keyType)
	}
	f.keyTypes[keyType] = keyTypeEntry{create: create, extractPub: extractPub, skip: skip}
}

// RegisterPubKeyType registers a public-key adapter.
func (f *KeyFactory) RegisterPubKeyType(keyType string, create CreatePubKeyFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pubKeyTypes[keyType]; exists {
		panic("keystore: public key type already registered: " + keyType)
	}
	f.pubKeyTypes[keyType] = create
}

// CreateKey builds a private key from its wire blob.
func (f *KeyFactory) CreateKey(keyType string, blob []byte, comment string) (Key, error) {
	f.mu.RLock()
	entry, ok := f.keyTypes[keyType]
	f.mu.RUnlock()
	if !ok {
		return nil, agenterr.New(agenterr.UnknownType, "keystore.KeyFactory.CreateKey", "unknown key type: "+keyType)
	}
	return entry.create(blob, comment)
}

// CreatePubKey builds a public key from its wire blob. keyType is read by
// the caller (the first string field of the blob) and passed in so
// callers that parse it for their own purposes don't need to re-read it.
func (f *KeyFactory) CreatePubKey(keyType string, blob []byte) (*PublicKey, error) {
	f.mu.RLock()
	create, ok := f.pubKeyTypes[keyType]
	f.mu.RUnlock()
	if !ok {
		return nil, agenterr.New(agenterr.UnknownType, "keystore.KeyFactory.CreatePubKey", "unknown public key type: "+keyType)
	}
	return create(keyType, blob)
}

// SkipKeyBlob advances d past a type-specific private key blob.
func (f *KeyFactory) SkipKeyBlob(keyType string, d *wire.Decoder) error {
	f.mu.RLock()
	entry, ok := f.keyTypes[keyType]
	f.mu.RUnlock()
	if !ok {
		return agenterr.New(agenterr.UnknownType, "keystore.KeyFactory.SkipKeyBlob", "unknown key type for skipping blob: "+keyType)
	}
	return entry.skip(d)
}

// ExtractPubKey pulls the public-key blob out of a private key blob.
func (f *KeyFactory) ExtractPubKey(keyType string, blob []byte) ([]byte, error) {
	f.mu.RLock()
	entry, ok := f.keyTypes[keyType]
	f.mu.RUnlock()
	if !ok {
		return nil, agenterr.New(agenterr.UnknownType, "keystore.KeyFactory.ExtractPubKey", "unknown key type for extracting pubkey: "+keyType)
	}
	return entry.extractPub(blob)
}
