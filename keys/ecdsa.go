package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"golang.org/x/crypto/ssh"
)

type ecdsaVariant struct {
	keyType   string
	curveName string
	curve     elliptic.Curve
	bits      int
}

var ecdsaVariants = []ecdsaVariant{
	{keyType: "ecdsa-sha2-nistp256", curveName: "nistp256", curve: elliptic.P256(), bits: 256},
	{keyType: "ecdsa-sha2-nistp384", curveName: "nistp384", curve: elliptic.P384(), bits: 384},
	{keyType: "ecdsa-sha2-nistp521", curveName: "nistp521", curve: elliptic.P521(), bits: 521},
}

func init() {
	for _, v := range ecdsaVariants {
		v := v
		keystore.DefaultFactory.RegisterKeyType(v.keyType,
			func(blob []byte, comment string) (keystore.Key, error) { return createECDSAKey(v, blob, comment) },
			func(blob []byte) ([]byte, error) { return extractECDSAPub(v, blob) },
			skipECDSABlob)
		keystore.DefaultFactory.RegisterPubKeyType(v.keyType, createECDSAPubKey)
	}
}

// ecdsaFields is the SSH agent wire order for an ECDSA private key blob:
// string curve name, string Q (uncompressed point), mpint d.
type ecdsaFields struct {
	q []byte
	d *big.Int
}

func parseECDSAFields(blob []byte) (ecdsaFields, error) {
	d := wire.NewDecoder(blob)
	if _, err := d.String(); err != nil { // curve name, re-derived from key type
		return ecdsaFields{}, err
	}
	q, err := d.Blob()
	if err != nil {
		return ecdsaFields{}, err
	}
	scalar, err := readMPIntBig(d)
	if err != nil {
		return ecdsaFields{}, err
	}
	return ecdsaFields{q: q, d: scalar}, nil
}

func skipECDSABlob(d *wire.Decoder) error {
	if err := d.DiscardBlob(); err != nil {
		return err
	}
	if err := d.DiscardBlob(); err != nil {
		return err
	}
	_, err := d.MPInt()
	return err
}

func (v ecdsaVariant) toPrivateKey(f ecdsaFields) (*ecdsa.PrivateKey, error) {
	x, y := elliptic.Unmarshal(v.curve, f.q)
	if x == nil {
		return nil, agenterr.New(agenterr.BadFormat, "keys.ecdsaVariant.toPrivateKey", "invalid curve point")
	}
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: v.curve, X: x, Y: y},
		D:         f.d,
	}, nil
}

func extractECDSAPub(v ecdsaVariant, blob []byte) ([]byte, error) {
	fields, err := parseECDSAFields(blob)
	if err != nil {
		return nil, err
	}
	priv, err := v.toPrivateKey(fields)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.extractECDSAPub", err)
	}
	return signer.PublicKey().Marshal(), nil
}

func createECDSAPubKey(keyType string, blob []byte) (*keystore.PublicKey, error) {
	pub, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "keys.createECDSAPubKey", err)
	}
	cp, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, agenterr.New(agenterr.BadFormat, "keys.createECDSAPubKey", "not a crypto public key")
	}
	ecPub, ok := cp.CryptoPublicKey().(*ecdsa.PublicKey)
	if !ok {
		return nil, agenterr.New(agenterr.BadFormat, "keys.createECDSAPubKey", "not an ECDSA public key")
	}
	return &keystore.PublicKey{KeyType: keyType, Blob: blob, Family: "ECDSA", Bits: ecPub.Curve.Params().BitSize}, nil
}

func createECDSAKey(v ecdsaVariant, blob []byte, comment string) (keystore.Key, error) {
	k := &ecdsaKey{variant: v, sealedBlob: append([]byte(nil), blob...)}
	k.SetComment(comment)
	if err := k.parse(blob); err != nil {
		return nil, err
	}
	return k, nil
}

type ecdsaKey struct {
	keystore.Base
	variant    ecdsaVariant
	sealedBlob []byte
	sealed     bool
	signer     ssh.Signer
	pub        *keystore.PublicKey
}

func (k *ecdsaKey) parse(blob []byte) error {
	fields, err := parseECDSAFields(blob)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.ecdsaKey.parse", err)
	}
	priv, err := k.variant.toPrivateKey(fields)
	if err != nil {
		return err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "keys.ecdsaKey.parse", err)
	}
	k.signer = signer
	k.pub = &keystore.PublicKey{KeyType: k.variant.keyType, Blob: signer.PublicKey().Marshal(), Family: "ECDSA", Bits: k.variant.bits}
	return nil
}

func (k *ecdsaKey) Type() string                   { return k.variant.keyType }
func (k *ecdsaKey) PubBlob() []byte                { return k.pub.Blob }
func (k *ecdsaKey) PublicKey() *keystore.PublicKey { return k.pub }
func (k *ecdsaKey) Locked() bool                   { return k.sealed }

func (k *ecdsaKey) Sign(data []byte, flags uint32) ([]byte, error) {
	if k.sealed {
		return nil, agenterr.New(agenterr.InvalidState, "keys.ecdsaKey.Sign", "key is locked")
	}
	sig, err := k.signer.Sign(randReader, data)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "keys.ecdsaKey.Sign", err)
	}
	return ssh.Marshal(sig), nil
}

func (k *ecdsaKey) Lock(passphrase []byte) error {
	if k.sealed {
		return agenterr.New(agenterr.InvalidState, "keys.ecdsaKey.Lock", "already locked")
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

func (k *ecdsaKey) Unlock(passphrase []byte) error {
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
