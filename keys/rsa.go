// Package keys provides the concrete key-type adapters (RSA, ECDSA,
// Ed25519) that back keystore.Key, registering themselves into
// keystore.DefaultFactory on import.
package keys

import (
	"crypto/rsa"
	"math/big"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"golang.org/x/crypto/ssh"
)

const rsaKeyType = "ssh-rsa"

func init() {
	keystore.DefaultFactory.RegisterKeyType(rsaKeyType, createRSAKey, extractRSAPub, skipRSABlob)
	keystore.DefaultFactory.RegisterPubKeyType(rsaKeyType, createRSAPubKey)
}

// rsaFields is the SSH agent wire order for an RSA private key blob:
// mpint n, e, d, iqmp, p, q. iqmp is parsed and discarded; Go's
// rsa.PrivateKey.Precompute derives its own CRT values.
type rsaFields struct {
	n, e, d, p, q *big.Int
}

func parseRSAFields(blob []byte) (rsaFields, error) {
	d := wire.NewDecoder(blob)
	n, err := readMPIntBig(d)
	if err != nil {
		return rsaFields{}, err
	}
	e, err := readMPIntBig(d)
	if err != nil {
		return rsaFields{}, err
	}
	priv, err := readMPIntBig(d)
	if err != nil {
		return rsaFields{}, err
	}
	if _, err := d.MPInt(); err != nil { // iqmp, unused
		return rsaFields{}, err
	}
	p, err := readMPIntBig(d)
	if err != nil {
		return rsaFields{}, err
	}
	q, err := readMPIntBig(d)
	if err != nil {
		return rsaFields{}, err
	}
	return rsaFields{n: n, e: e, d: priv, p: p, q: q}, nil
}

func readMPIntBig(d *wire.Decoder) (*big.Int, error) {
	b, err := d.MPInt()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func (f rsaFields) toPrivateKey() *rsa.PrivateKey {
	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: f.n, E: int(f.e.Int64())},
		D:         f.d,
		Primes:    []*big.Int{f.p, f.q},
	}
	key.Precompute()
	return key
}

func skipRSABlob(d *wire.Decoder) error {
	for i := 0; i < 6; i++ {
		if _, err := d.MPInt(); err != nil {
			return err
		}
	}
	return nil
}

func extractRSAPub(blob []byte) ([]byte, error) {
	fields, err := parseRSAFields(blob)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(fields.toPrivateKey())
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.extractRSAPub", err)
	}
	return signer.PublicKey().Marshal(), nil
}

func createRSAPubKey(keyType string, blob []byte) (*keystore.PublicKey, error) {
	pub, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.createRSAPubKey", err)
	}
	cp, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, agenterr.New(agenterr.BadFormat, "keys.createRSAPubKey", "not a crypto public key")
	}
	rsaPub, ok := cp.CryptoPublicKey().(*rsa.PublicKey)
	if !ok {
		return nil, agenterr.New(agenterr.BadFormat, "keys.createRSAPubKey", "not an RSA public key")
	}
	return &keystore.PublicKey{KeyType: keyType, Blob: blob, Family: "RSA", Bits: rsaPub.N.BitLen()}, nil
}

func createRSAKey(blob []byte, comment string) (keystore.Key, error) {
	k := &rsaKey{sealedBlob: append([]byte(nil), blob...)}
	k.SetComment(comment)
	if err := k.parse(blob); err != nil {
		return nil, err
	}
	return k, nil
}

// rsaKey is the RSA adapter for keystore.Key. While unlocked, signer is
// the live ssh.Signer used to sign; while locked, sealedBlob holds the
// encrypted field blob and signer is nil.
type rsaKey struct {
	keystore.Base
	sealedBlob []byte
	sealed     bool
	signer     ssh.AlgorithmSigner
	pub        *keystore.PublicKey
}

func (k *rsaKey) parse(blob []byte) error {
	fields, err := parseRSAFields(blob)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.rsaKey.parse", err)
	}
	priv := fields.toPrivateKey()
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.rsaKey.parse", err)
	}
	algSigner, ok := signer.(ssh.AlgorithmSigner)
	if !ok {
		return agenterr.New(agenterr.BadFormat, "keys.rsaKey.parse", "RSA signer does not support algorithm selection")
	}
	k.signer = algSigner
	k.pub = &keystore.PublicKey{KeyType: rsaKeyType, Blob: signer.PublicKey().Marshal(), Family: "RSA", Bits: priv.N.BitLen()}
	return nil
}

func (k *rsaKey) Type() string                    { return rsaKeyType }
func (k *rsaKey) PubBlob() []byte                 { return k.pub.Blob }
func (k *rsaKey) PublicKey() *keystore.PublicKey  { return k.pub }
func (k *rsaKey) Locked() bool                    { return k.sealed }

// Sign chooses the signature algorithm from the SSH_AGENT_RSA_SHA2_*
// flags carried in a sign request, defaulting to the legacy SHA-1
// signature when neither flag is set.
func (k *rsaKey) Sign(data []byte, flags uint32) ([]byte, error) {
	if k.sealed {
		return nil, agenterr.New(agenterr.InvalidState, "keys.rsaKey.Sign", "key is locked")
	}
	algo := ""
	switch {
	case flags&signFlagRSASHA512 != 0:
		algo = ssh.KeyAlgoRSASHA512
	case flags&signFlagRSASHA256 != 0:
		algo = ssh.KeyAlgoRSASHA256
	}
	sig, err := k.signer.SignWithAlgorithm(randReader, data, algo)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keys.rsaKey.Sign", err)
	}
	return ssh.Marshal(sig), nil
}

func (k *rsaKey) Lock(passphrase []byte) error {
	if k.sealed {
		return agenterr.New(agenterr.InvalidState, "keys.rsaKey.Lock", "already locked")
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

func (k *rsaKey) Unlock(passphrase []byte) error {
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
