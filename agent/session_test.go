package agent_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/agent"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	_ "github.com/ayanrajpoot10/sshagent-core/keys"
	"github.com/ayanrajpoot10/sshagent-core/protocol"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newManager() *keystore.KeyManager {
	return keystore.NewKeyManager(keystore.DefaultFactory)
}

func ed25519Blob(t *testing.T) (ed25519.PrivateKey, []byte) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	e := wire.NewEncoder()
	require.NoError(t, e.Blob(priv.Public().(ed25519.PublicKey)))
	require.NoError(t, e.Blob(priv))
	return priv, e.Bytes()
}

func addIdentityFrame(t *testing.T, blob []byte, comment string) []byte {
	t.Helper()
	e := wire.NewEncoder()
	e.Byte(protocol.AgentcAddIdentity)
	require.NoError(t, e.String("ssh-ed25519"))
	e.Raw(blob)
	require.NoError(t, e.String(comment))
	return e.Bytes()
}

func addConstrainedIdentityFrame(t *testing.T, blob []byte, comment string, confirm bool, lifetime uint32, destConstraint *keystore.DestinationConstraint) []byte {
	t.Helper()
	e := wire.NewEncoder()
	e.Byte(protocol.AgentcAddIdentityConstrained)
	require.NoError(t, e.String("ssh-ed25519"))
	e.Raw(blob)
	require.NoError(t, e.String(comment))
	if confirm {
		e.Byte(protocol.ConstrainConfirm)
	}
	if lifetime > 0 {
		e.Byte(protocol.ConstrainLifetime)
		e.Uint32(lifetime)
	}
	if destConstraint != nil {
		e.Byte(protocol.ConstrainExtension)
		require.NoError(t, e.String("restrict-destination-v00@openssh.com"))
		inner := wire.NewEncoder()
		require.NoError(t, inner.Blob(destConstraint.Serialize()))
		outer := wire.NewEncoder()
		require.NoError(t, outer.Blob(inner.Bytes()))
		e.Raw(outer.Bytes())
	}
	return e.Bytes()
}

func signRequestFrame(t *testing.T, keyBlob, data []byte) []byte {
	t.Helper()
	e := wire.NewEncoder()
	e.Byte(protocol.AgentcSignRequest)
	require.NoError(t, e.Blob(keyBlob))
	require.NoError(t, e.Blob(data))
	e.Uint32(0)
	return e.Bytes()
}

func requestIdentitiesFrame() []byte {
	return []byte{protocol.AgentcRequestIdentities}
}

func lockFrame(msgType byte, passphrase string) []byte {
	e := wire.NewEncoder()
	e.Byte(msgType)
	_ = e.Blob([]byte(passphrase))
	return e.Bytes()
}

func extensionFrame(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	e := wire.NewEncoder()
	e.Byte(protocol.AgentcExtension)
	require.NoError(t, e.String(name))
	e.Raw(payload)
	return e.Bytes()
}

func sessionBindPayload(t *testing.T, hostPub ssh.PublicKey, hostPriv ed25519.PrivateKey, sessionID []byte, forwarded bool) []byte {
	t.Helper()
	e := wire.NewEncoder()
	require.NoError(t, e.Blob(hostPub.Marshal()))
	require.NoError(t, e.Blob(sessionID))
	if hostPriv != nil {
		signer, err := ssh.NewSignerFromKey(hostPriv)
		require.NoError(t, err)
		sig, err := signer.Sign(rand.Reader, sessionID)
		require.NoError(t, err)
		require.NoError(t, e.Blob(ssh.Marshal(sig)))
	} else {
		require.NoError(t, e.Blob(nil))
	}
	if forwarded {
		e.Byte(1)
	} else {
		e.Byte(0)
	}
	return e.Bytes()
}

func userAuthRequestBody(t *testing.T, sessionID []byte, username string) []byte {
	t.Helper()
	e := wire.NewEncoder()
	require.NoError(t, e.Blob(sessionID))
	e.Byte(protocol.SSHMsgUserAuthRequest)
	require.NoError(t, e.String(username))
	require.NoError(t, e.String("ssh-connection"))
	require.NoError(t, e.String(protocol.PublickeyHostboundMethod))
	e.Byte(1)
	require.NoError(t, e.String("ssh-ed25519"))
	require.NoError(t, e.Blob([]byte("client-pubkey")))
	require.NoError(t, e.Blob([]byte("client-pubkey")))
	return e.Bytes()
}

func TestAddAndListIdentity(t *testing.T) {
	s := agent.NewSession(newManager())
	_, blob := ed25519Blob(t)

	resp := s.Handle(addIdentityFrame(t, blob, "laptop@work"))
	require.Equal(t, protocol.AgentSuccess, resp[0])

	resp = s.Handle(requestIdentitiesFrame())
	require.Equal(t, protocol.AgentIdentitiesAnswer, resp[0])

	d := wire.NewDecoder(resp[1:])
	count, err := d.Uint32()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	_, err = d.Blob()
	require.NoError(t, err)
	comment, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "laptop@work", comment)
}

func TestUnconstrainedSignSucceeds(t *testing.T) {
	s := agent.NewSession(newManager())
	_, blob := ed25519Blob(t)
	require.Equal(t, protocol.AgentSuccess, s.Handle(addIdentityFrame(t, blob, "k"))[0])

	pub := ed25519PubFromBlob(t, blob)
	resp := s.Handle(signRequestFrame(t, pub, []byte("data to sign")))
	require.Equal(t, protocol.AgentSignResponse, resp[0])
}

func ed25519PubFromBlob(t *testing.T, blob []byte) []byte {
	t.Helper()
	d := wire.NewDecoder(blob)
	pub, err := d.Blob()
	require.NoError(t, err)
	signer, err := ssh.NewPublicKey(ed25519.PublicKey(pub))
	require.NoError(t, err)
	return signer.Marshal()
}

func TestConstrainedSignRequiresBindingFirst(t *testing.T) {
	manager := newManager()
	s := agent.NewSession(manager)
	_, blob := ed25519Blob(t)

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	dc := keystore.DestinationConstraint{
		To: keystore.Hop{Hostname: "prod", Keys: []keystore.HopKey{{Key: hostSigner.PublicKey().Marshal()}}},
	}
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", false, 0, &dc))[0])

	pub := ed25519PubFromBlob(t, blob)
	data := userAuthRequestBody(t, []byte("session-1"), "")
	resp := s.Handle(signRequestFrame(t, pub, data))
	assert.Equal(t, protocol.AgentFailure, resp[0], "no session binding recorded yet")
}

func TestConstrainedSignSucceedsAfterMatchingBind(t *testing.T) {
	manager := newManager()
	s := agent.NewSession(manager)
	_, blob := ed25519Blob(t)

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	dc := keystore.DestinationConstraint{
		To: keystore.Hop{Hostname: "prod", Keys: []keystore.HopKey{{Key: hostSigner.PublicKey().Marshal()}}},
	}
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", false, 0, &dc))[0])

	sessionID := []byte("session-xyz")
	bindPayload := sessionBindPayload(t, hostSigner.PublicKey(), hostPriv, sessionID, false)
	resp := s.Handle(extensionFrame(t, "session-bind@openssh.com", bindPayload))
	require.Equal(t, protocol.AgentSuccess, resp[0])

	pub := ed25519PubFromBlob(t, blob)
	data := userAuthRequestBody(t, sessionID, "")
	resp = s.Handle(signRequestFrame(t, pub, data))
	assert.Equal(t, protocol.AgentSignResponse, resp[0])
}

func TestConstrainedSignFailsOnSessionIDMismatch(t *testing.T) {
	manager := newManager()
	s := agent.NewSession(manager)
	_, blob := ed25519Blob(t)

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	dc := keystore.DestinationConstraint{
		To: keystore.Hop{Hostname: "prod", Keys: []keystore.HopKey{{Key: hostSigner.PublicKey().Marshal()}}},
	}
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", false, 0, &dc))[0])

	resp := s.Handle(extensionFrame(t, "session-bind@openssh.com", sessionBindPayload(t, hostSigner.PublicKey(), hostPriv, []byte("bound-session"), false)))
	require.Equal(t, protocol.AgentSuccess, resp[0])

	pub := ed25519PubFromBlob(t, blob)
	data := userAuthRequestBody(t, []byte("a-different-session"), "")
	resp = s.Handle(signRequestFrame(t, pub, data))
	assert.Equal(t, protocol.AgentFailure, resp[0])
}

type fakeConfirmer struct {
	approve bool
	asked   int
}

func (f *fakeConfirmer) RequiresConfirmation(keystore.Key) bool { return false }
func (f *fakeConfirmer) ConfirmRequest(keystore.Key) bool {
	f.asked++
	return f.approve
}

func TestSignWithConfirmRequiredFailsClosedWithoutConfirmer(t *testing.T) {
	s := agent.NewSession(newManager())
	_, blob := ed25519Blob(t)
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", true, 0, nil))[0])

	pub := ed25519PubFromBlob(t, blob)
	resp := s.Handle(signRequestFrame(t, pub, []byte("payload")))
	assert.Equal(t, protocol.AgentFailure, resp[0])
}

func TestSignWithConfirmRequiredSucceedsWhenApproved(t *testing.T) {
	confirmer := &fakeConfirmer{approve: true}
	s := agent.NewSession(newManager(), agent.WithConfirmer(confirmer))
	_, blob := ed25519Blob(t)
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", true, 0, nil))[0])

	pub := ed25519PubFromBlob(t, blob)
	resp := s.Handle(signRequestFrame(t, pub, []byte("payload")))
	assert.Equal(t, protocol.AgentSignResponse, resp[0])
	assert.Equal(t, 1, confirmer.asked)
}

func TestSignWithConfirmRequiredFailsWhenDeclined(t *testing.T) {
	confirmer := &fakeConfirmer{approve: false}
	manager := newManager()
	s := agent.NewSession(manager, agent.WithConfirmer(confirmer))
	_, blob := ed25519Blob(t)
	require.Equal(t, protocol.AgentSuccess, s.Handle(addConstrainedIdentityFrame(t, blob, "k", true, 0, nil))[0])

	pub := ed25519PubFromBlob(t, blob)
	resp := s.Handle(signRequestFrame(t, pub, []byte("payload")))
	assert.Equal(t, protocol.AgentFailure, resp[0])
	assert.Equal(t, 1, confirmer.asked)
}

func TestLockRejectsEverythingExceptUnlock(t *testing.T) {
	manager := newManager()
	manager.SetLockProvider(keystore.NewBcryptLockProvider())
	s := agent.NewSession(manager)

	require.Equal(t, protocol.AgentSuccess, s.Handle(lockFrame(protocol.AgentcLock, "hunter2"))[0])

	resp := s.Handle(requestIdentitiesFrame())
	assert.Equal(t, protocol.AgentFailure, resp[0])

	resp = s.Handle(lockFrame(protocol.AgentcUnlock, "hunter2"))
	assert.Equal(t, protocol.AgentSuccess, resp[0])

	resp = s.Handle(requestIdentitiesFrame())
	assert.Equal(t, protocol.AgentIdentitiesAnswer, resp[0])
}

func TestConcurrentSignRequestPanics(t *testing.T) {
	_, blob := ed25519Blob(t)

	confirmer := &blockingConfirmer{proceed: make(chan struct{}), entered: make(chan struct{})}
	s2 := agent.NewSession(newManager(), agent.WithConfirmer(confirmer))
	require.Equal(t, protocol.AgentSuccess, s2.Handle(addConstrainedIdentityFrame(t, blob, "k", true, 0, nil))[0])

	pub := ed25519PubFromBlob(t, blob)
	done := make(chan struct{})
	go func() {
		s2.Handle(signRequestFrame(t, pub, []byte("payload")))
		close(done)
	}()
	<-confirmer.entered

	assert.Panics(t, func() {
		s2.Handle(signRequestFrame(t, pub, []byte("payload")))
	})
	close(confirmer.proceed)
	<-done
}

type blockingConfirmer struct {
	entered chan struct{}
	proceed chan struct{}
}

func (b *blockingConfirmer) RequiresConfirmation(keystore.Key) bool { return false }
func (b *blockingConfirmer) ConfirmRequest(keystore.Key) bool {
	close(b.entered)
	<-b.proceed
	return true
}
