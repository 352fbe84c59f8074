package extension_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/extension"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	_ "github.com/ayanrajpoot10/sshagent-core/keys"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

type fakeSession struct {
	failed   bool
	bindings []keystore.Binding
}

func (f *fakeSession) BindingFailed() bool          { return f.failed }
func (f *fakeSession) Bindings() []keystore.Binding { return f.bindings }
func (f *fakeSession) Bind(b keystore.Binding)      { f.bindings = append(f.bindings, b) }

func hostKeyBlob(t *testing.T) ([]byte, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer.PublicKey().Marshal(), priv
}

func TestSessionBindRecordsUnsignedBinding(t *testing.T) {
	hostKey, _ := hostKeyBlob(t)
	e := wire.NewEncoder()
	require.NoError(t, e.Blob(hostKey))
	require.NoError(t, e.Blob([]byte("session-id")))
	require.NoError(t, e.Blob(nil))
	e.Byte(0)

	ext, err := extension.DefaultRegistry.CreateMessageExtension(extension.SessionBindExtensionName)
	require.NoError(t, err)
	require.NoError(t, ext.Parse(e.Bytes()))

	sess := &fakeSession{}
	_, err = ext.Handle(sess)
	require.NoError(t, err)
	require.Len(t, sess.bindings, 1)
	assert.Equal(t, hostKey, sess.bindings[0].HostKey)
}

func TestSessionBindVerifiesSignature(t *testing.T) {
	hostKey, priv := hostKeyBlob(t)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sessionID := []byte("the session id")
	sig, err := signer.Sign(rand.Reader, sessionID)
	require.NoError(t, err)

	e := wire.NewEncoder()
	require.NoError(t, e.Blob(hostKey))
	require.NoError(t, e.Blob(sessionID))
	require.NoError(t, e.Blob(ssh.Marshal(sig)))
	e.Byte(0)

	ext, err := extension.DefaultRegistry.CreateMessageExtension(extension.SessionBindExtensionName)
	require.NoError(t, err)
	assert.NoError(t, ext.Parse(e.Bytes()))
}

func TestSessionBindRejectsBadSignature(t *testing.T) {
	hostKey, priv := hostKeyBlob(t)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sig, err := signer.Sign(rand.Reader, []byte("some other data"))
	require.NoError(t, err)

	e := wire.NewEncoder()
	require.NoError(t, e.Blob(hostKey))
	require.NoError(t, e.Blob([]byte("the session id")))
	require.NoError(t, e.Blob(ssh.Marshal(sig)))
	e.Byte(0)

	ext, err := extension.DefaultRegistry.CreateMessageExtension(extension.SessionBindExtensionName)
	require.NoError(t, err)
	assert.Error(t, ext.Parse(e.Bytes()))
}

func TestRestrictDestinationRoundTrip(t *testing.T) {
	c := keystore.DestinationConstraint{
		To: keystore.Hop{Hostname: "prod", Keys: []keystore.HopKey{{Key: []byte("hostkey")}}},
	}
	inner := wire.NewEncoder()
	_ = inner.Blob(c.Serialize())
	outer := wire.NewEncoder()
	_ = outer.Blob(inner.Bytes())

	ext, err := extension.DefaultRegistry.CreateConstraintExtension(extension.RestrictDestinationExtensionName)
	require.NoError(t, err)
	require.NoError(t, ext.Parse(outer.Bytes()))

	rd := ext.(*extension.RestrictDestination)
	require.Len(t, rd.Constraints, 1)
	assert.Equal(t, "prod", rd.Constraints[0].To.Hostname)

	var applied []keystore.DestinationConstraint
	rd.Apply(&applied)
	assert.Len(t, applied, 1)
}

func TestUnknownExtensionIsRejected(t *testing.T) {
	_, err := extension.DefaultRegistry.CreateMessageExtension("not-a-real-extension@example.com")
	assert.Error(t, err)
	assert.False(t, extension.DefaultRegistry.KnowsMessageExtension("not-a-real-extension@example.com"))
	assert.True(t, extension.DefaultRegistry.KnowsMessageExtension(extension.SessionBindExtensionName))
}
