package protocol_test

import (
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/keystore"
	_ "github.com/ayanrajpoot10/sshagent-core/keys"
	"github.com/ayanrajpoot10/sshagent-core/protocol"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEd25519Blob() []byte {
	e := wire.NewEncoder()
	_ = e.Blob(make([]byte, 32))
	_ = e.Blob(make([]byte, 64))
	return e.Bytes()
}

func TestAddIdentityRoundTrip(t *testing.T) {
	body := wire.NewEncoder()
	_ = body.String("ssh-ed25519")
	body.Raw(buildEd25519Blob())
	_ = body.String("me@host")

	msg, err := protocol.ParseAddIdentity(body.Bytes(), keystore.DefaultFactory, false)
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", msg.KeyType)
	assert.Equal(t, "me@host", msg.Comment)
	assert.False(t, msg.Constrained)

	encoded := msg.Serialize()
	assert.Equal(t, protocol.AgentcAddIdentity, encoded[0])
}

func TestAddIdentityConstrainedRoundTripsDestConstraints(t *testing.T) {
	body := wire.NewEncoder()
	_ = body.String("ssh-ed25519")
	body.Raw(buildEd25519Blob())
	_ = body.String("me@host")
	body.Byte(protocol.ConstrainConfirm)
	body.Byte(protocol.ConstrainLifetime)
	body.Uint32(3600)
	body.Byte(protocol.ConstrainExtension)
	_ = body.String("restrict-destination-v00@openssh.com")

	c := keystore.DestinationConstraint{
		To: keystore.Hop{Hostname: "prod", Keys: []keystore.HopKey{{Key: []byte("hostkeybytes")}}},
	}
	inner := wire.NewEncoder()
	_ = inner.Blob(c.Serialize())
	outer := wire.NewEncoder()
	_ = outer.Blob(inner.Bytes())
	body.Raw(outer.Bytes())

	msg, err := protocol.ParseAddIdentity(body.Bytes(), keystore.DefaultFactory, true)
	require.NoError(t, err)
	assert.True(t, msg.ConfirmRequired)
	assert.EqualValues(t, 3600, msg.LifetimeSeconds)
	require.Len(t, msg.DestConstraints, 1)
	assert.Equal(t, "prod", msg.DestConstraints[0].To.Hostname)

	reencoded := msg.Serialize()
	msg2, err := protocol.ParseAddIdentity(reencoded[1:], keystore.DefaultFactory, true)
	require.NoError(t, err)
	require.Len(t, msg2.DestConstraints, 1)
	assert.Equal(t, "prod", msg2.DestConstraints[0].To.Hostname)
	assert.True(t, msg2.ConfirmRequired)
	assert.EqualValues(t, 3600, msg2.LifetimeSeconds)
}

func TestSignRequestRoundTrip(t *testing.T) {
	e := wire.NewEncoder()
	_ = e.Blob([]byte("keyblob"))
	_ = e.Blob([]byte("data"))
	e.Uint32(protocol.AgentRSASHA2256)

	req, err := protocol.ParseSignRequest(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("keyblob"), req.KeyBlob)
	assert.Equal(t, protocol.AgentRSASHA2256, req.Flags)
}

func TestLockRequestRoundTrip(t *testing.T) {
	e := wire.NewEncoder()
	_ = e.Blob([]byte("hunter2"))
	req, err := protocol.ParseLockRequest(protocol.AgentcLock, e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), req.Passphrase)
}

func TestExtensionRequestRoundTrip(t *testing.T) {
	e := wire.NewEncoder()
	_ = e.String("session-bind@openssh.com")
	e.Raw([]byte("payload"))

	req, err := protocol.ParseExtensionRequest(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "session-bind@openssh.com", req.Name)
	assert.Equal(t, []byte("payload"), req.Payload)
}

func TestParseUserAuthRequestRejectsWrongMethod(t *testing.T) {
	e := wire.NewEncoder()
	_ = e.Blob([]byte("sessionid"))
	e.Byte(protocol.SSHMsgUserAuthRequest)
	_ = e.String("alice")
	_ = e.String("ssh-connection")
	_ = e.String("publickey")
	e.Byte(1)
	_ = e.String("ssh-ed25519")
	_ = e.Blob([]byte("pubkey"))
	_ = e.Blob([]byte("hostkey"))

	_, err := protocol.ParseUserAuthRequest(e.Bytes())
	assert.Error(t, err)
}

func TestParseUserAuthRequestAccepted(t *testing.T) {
	e := wire.NewEncoder()
	_ = e.Blob([]byte("sessionid"))
	e.Byte(protocol.SSHMsgUserAuthRequest)
	_ = e.String("alice")
	_ = e.String("ssh-connection")
	_ = e.String(protocol.PublickeyHostboundMethod)
	e.Byte(1)
	_ = e.String("ssh-ed25519")
	_ = e.Blob([]byte("pubkey"))
	_ = e.Blob([]byte("hostkey"))

	req, err := protocol.ParseUserAuthRequest(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, []byte("hostkey"), req.ServerHostKey)
}
