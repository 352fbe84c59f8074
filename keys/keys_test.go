package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"github.com/stretchr/testify/require"
)

func buildEd25519Blob(t *testing.T, priv ed25519.PrivateKey) []byte {
	t.Helper()
	e := wire.NewEncoder()
	require.NoError(t, e.Blob(priv.Public().(ed25519.PublicKey)))
	require.NoError(t, e.Blob(priv))
	return e.Bytes()
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = pub
	blob := buildEd25519Blob(t, priv)

	key, err := keystore.DefaultFactory.CreateKey(ed25519KeyType, blob, "test@host")
	require.NoError(t, err)
	require.Equal(t, ed25519KeyType, key.Type())

	sig, err := key.Sign([]byte("data to sign"), 0)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	require.NoError(t, key.Lock([]byte("hunter2")))
	require.True(t, key.Locked())
	_, err = key.Sign([]byte("data to sign"), 0)
	require.Error(t, err)

	require.NoError(t, key.Unlock([]byte("hunter2")))
	require.False(t, key.Locked())
	sig2, err := key.Sign([]byte("data to sign"), 0)
	require.NoError(t, err)
	require.NotEmpty(t, sig2)
}

func TestEd25519WrongPassphraseFailsUnlock(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	blob := buildEd25519Blob(t, priv)
	key, err := keystore.DefaultFactory.CreateKey(ed25519KeyType, blob, "")
	require.NoError(t, err)
	require.NoError(t, key.Lock([]byte("right")))
	require.Error(t, key.Unlock([]byte("wrong")))
}

func buildRSABlob(t *testing.T, priv *rsa.PrivateKey) []byte {
	t.Helper()
	priv.Precompute()
	e := wire.NewEncoder()
	require.NoError(t, e.MPInt(priv.N.Bytes()))
	require.NoError(t, e.MPInt(bigIntBytes(priv.E)))
	require.NoError(t, e.MPInt(priv.D.Bytes()))
	require.NoError(t, e.MPInt(priv.Precomputed.Qinv.Bytes()))
	require.NoError(t, e.MPInt(priv.Primes[0].Bytes()))
	require.NoError(t, e.MPInt(priv.Primes[1].Bytes()))
	return e.Bytes()
}

func bigIntBytes(v int) []byte {
	return big.NewInt(int64(v)).Bytes()
}

func TestRSARoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	blob := buildRSABlob(t, priv)

	key, err := keystore.DefaultFactory.CreateKey(rsaKeyType, blob, "rsa@host")
	require.NoError(t, err)
	sig, err := key.Sign([]byte("payload"), signFlagRSASHA256)
	require.NoError(t, err)
	require.NotEmpty(t, sig)
}

func buildECDSABlob(t *testing.T, v ecdsaVariant, priv *ecdsa.PrivateKey) []byte {
	t.Helper()
	e := wire.NewEncoder()
	require.NoError(t, e.String(v.curveName))
	require.NoError(t, e.Blob(elliptic.Marshal(v.curve, priv.X, priv.Y)))
	require.NoError(t, e.MPInt(priv.D.Bytes()))
	return e.Bytes()
}

func TestECDSARoundTrip(t *testing.T) {
	for _, v := range ecdsaVariants {
		v := v
		t.Run(v.keyType, func(t *testing.T) {
			priv, err := ecdsa.GenerateKey(v.curve, rand.Reader)
			require.NoError(t, err)
			blob := buildECDSABlob(t, v, priv)

			key, err := keystore.DefaultFactory.CreateKey(v.keyType, blob, "ec@host")
			require.NoError(t, err)
			sig, err := key.Sign([]byte("payload"), 0)
			require.NoError(t, err)
			require.NotEmpty(t, sig)
		})
	}
}
