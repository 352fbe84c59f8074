package keys

import (
	"crypto/ed25519"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"golang.org/x/crypto/ssh"
)

const ed25519KeyType = "ssh-ed25519"

func init() {
	keystore.DefaultFactory.RegisterKeyType(ed25519KeyType, createEd25519Key, extractEd25519Pub, skipEd25519Blob)
	keystore.DefaultFactory.RegisterPubKeyType(ed25519KeyType, createEd25519PubKey)
}

// The SSH agent wire order for an Ed25519 private key blob is: string
// pub (32 bytes), string seed||pub (64 bytes) — the latter is bit for
// bit crypto/ed25519's own PrivateKey encoding.
func parseEd25519Fields(blob []byte) (ed25519.PrivateKey, error) {
	d := wire.NewDecoder(blob)
	if _, err := d.Blob(); err != nil { // public half, re-derived from the private half below
		return nil, err
	}
	priv, err := d.Blob()
	if err != nil {
		return nil, err
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, agenterr.New(agenterr.BadFormat, "keys.parseEd25519Fields", "wrong private key size")
	}
	return ed25519.PrivateKey(priv), nil
}

func skipEd25519Blob(d *wire.Decoder) error {
	if err := d.DiscardBlob(); err != nil {
		return err
	}
	return d.DiscardBlob()
}

func extractEd25519Pub(blob []byte) ([]byte, error) {
	priv, err := parseEd25519Fields(blob)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.extractEd25519Pub", err)
	}
	return signer.PublicKey().Marshal(), nil
}

func createEd25519PubKey(keyType string, blob []byte) (*keystore.PublicKey, error) {
	if _, err := ssh.ParsePublicKey(blob); err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.createEd25519PubKey", err)
	}
	return &keystore.PublicKey{KeyType: keyType, Blob: blob, Family: "ED25519", Bits: 256}, nil
}

func createEd25519Key(blob []byte, comment string) (keystore.Key, error) {
	k := &ed25519Key{sealedBlob: append([]byte(nil), blob...)}
	k.SetComment(comment)
	if err := k.parse(blob); err != nil {
		return nil, err
	}
	return k, nil
}

type ed25519Key struct {
	keystore.Base
	sealedBlob []byte
	sealed     bool
	signer     ssh.Signer
	pub        *keystore.PublicKey
}

func (k *ed25519Key) parse(blob []byte) error {
	priv, err := parseEd25519Fields(blob)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.ed25519Key.parse", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.ed25519Key.parse", err)
	}
	k.signer = signer
	k.pub = &keystore.PublicKey{KeyType: ed25519KeyType, Blob: signer.PublicKey().Marshal(), Family: "ED25519", Bits: 256}
	return nil
}

func (k *ed25519Key) Type() string                   { return ed25519KeyType }
func (k *ed25519Key) PubBlob() []byte                { return k.pub.Blob }
func (k *ed25519Key) PublicKey() *keystore.PublicKey { return k.pub }
func (k *ed25519Key) Locked() bool                   { return k.sealed }

func (k *ed25519Key) Sign(data []byte, flags uint32) ([]byte, error) {
	if k.sealed {
		return nil, agenterr.New(agenterr.InvalidState, "keys.ed25519Key.Sign", "key is locked")
	}
	sig, err := k.signer.Sign(randReader, data)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keys.ed25519Key.Sign", err)
	}
	return ssh.Marshal(sig), nil
}

func (k *ed25519Key) Lock(passphrase []byte) error {
	if k.sealed {
		return agenterr.New(agenterr.InvalidState, "keys.ed25519Key.Lock", "already locked")
	}
	sealed, err := keystore.Seal(passphrase, k.sealedBlob)
	if err != nil {
		return err
	}
	k.sealedBlob = sealed
	k.sealed = true
	k.signer = nil
	return nil
}

func (k *ed25519Key) Unlock(passphrase []byte) error {
	if !k.sealed {
		return nil
	}
	plaintext, err := keystore.Open(passphrase, k.sealedBlob)
	if err != nil {
		return err
	}
	if err := k.parse(plaintext); err != nil {
		return err
	}
	k.sealedBlob = plaintext
	k.sealed = false
	return nil
}
