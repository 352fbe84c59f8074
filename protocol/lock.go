package protocol

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// LockRequest is the shared shape of SSH_AGENTC_LOCK and
// SSH_AGENTC_UNLOCK: a message type octet followed by a single
// passphrase blob.
type LockRequest struct {
	Type       byte
	Passphrase []byte
}

// ParseLockRequest decodes body for either AgentcLock or AgentcUnlock.
func ParseLockRequest(msgType byte, body []byte) (*LockRequest, error) {
	d := wire.NewDecoder(body)
	passphrase, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseLockRequest", err)
	}
	return &LockRequest{Type: msgType, Passphrase: passphrase}, nil
}

// Serialize re-encodes the message, including its type octet.
func (m *LockRequest) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(m.Type)
	_ = e.Blob(m.Passphrase)
	return e.Bytes()
}
