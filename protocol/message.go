// Package protocol implements the SSH agent message types carried inside
// the length-prefixed frames the wire package encodes: request/response
// pairs for listing, adding, removing and signing with identities,
// locking the agent, and the extension mechanism, plus the
// publickey-hostbound-v00@openssh.com userauth request the session-bind
// extension exists to authenticate.
package protocol

import "github.com/ayanrajpoot10/sshagent-core/agenterr"

// Message type octets, draft-ietf-sshm-ssh-agent section 6.1.
const (
	AgentFailure           byte = 5
	AgentSuccess           byte = 6
	AgentIdentitiesAnswer  byte = 12
	AgentSignResponse      byte = 14
	AgentExtensionFailure  byte = 28
	AgentExtensionResponse byte = 29

	AgentcRequestIdentities      byte = 11
	AgentcSignRequest            byte = 13
	AgentcAddIdentity            byte = 17
	AgentcRemoveIdentity         byte = 18
	AgentcRemoveAllIdentities    byte = 19
	AgentcLock                   byte = 22
	AgentcUnlock                 byte = 23
	AgentcAddIdentityConstrained byte = 25
	AgentcExtension              byte = 27

	// Smartcard messages are recognized only to be rejected with
	// AgentFailure; smartcard-backed keys are out of scope.
	AgentcAddSmartcardKey            byte = 20
	AgentcRemoveSmartcardKey         byte = 21
	AgentcAddSmartcardKeyConstrained byte = 26

	// AgentcRemoveAllRSAIdentities is a deprecated alias for
	// AgentcRemoveAllIdentities kept for wire compatibility with very old
	// clients.
	AgentcRemoveAllRSAIdentities byte = 9
)

// Key constraint tags, draft-ietf-sshm-ssh-agent section 3.2.7.
const (
	ConstrainLifetime  byte = 1
	ConstrainConfirm   byte = 2
	ConstrainExtension byte = 255
)

// SSHMsgUserAuthRequest is the SSH transport protocol message type a
// publickey-hostbound-v00 signature is computed over, RFC 4252 section 5.
const SSHMsgUserAuthRequest byte = 50

// Envelope is a decoded frame body: the leading type octet and everything
// after it. wire.ReadFrame/WriteFrame handle the outer length prefix;
// Envelope handles the type octet every agent message carries next.
type Envelope struct {
	Type byte
	Body []byte
}

// DecodeEnvelope splits a frame body into its type octet and payload.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, agenterr.New(agenterr.ShortRead, "protocol.DecodeEnvelope", "empty message")
	}
	return Envelope{Type: frame[0], Body: frame[1:]}, nil
}

// Encode reassembles the envelope into a single frame body.
func (e Envelope) Encode() []byte {
	out := make([]byte, 1+len(e.Body))
	out[0] = e.Type
	copy(out[1:], e.Body)
	return out
}

// SimpleMessage builds a frame body consisting of only a type octet, used
// for SSH_AGENT_SUCCESS, SSH_AGENT_FAILURE and the various no-payload
// requests.
func SimpleMessage(msgType byte) []byte {
	return []byte{msgType}
}
