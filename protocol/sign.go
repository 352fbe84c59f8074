package protocol

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// RSA signature-flavor flags carried in a sign request, draft-ietf-sshm-ssh-agent
// section 3.6.1.
const (
	AgentRSASHA2256 uint32 = 1 << 1
	AgentRSASHA2512 uint32 = 1 << 2
)

// SignRequest is SSH_AGENTC_SIGN_REQUEST.
type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   uint32
}

// ParseSignRequest decodes body.
func ParseSignRequest(body []byte) (*SignRequest, error) {
	d := wire.NewDecoder(body)
	keyBlob, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseSignRequest", err)
	}
	data, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseSignRequest", err)
	}
	flags, err := d.Uint32()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseSignRequest", err)
	}
	return &SignRequest{KeyBlob: keyBlob, Data: data, Flags: flags}, nil
}

// Serialize re-encodes the message, including its type octet.
func (m *SignRequest) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentcSignRequest)
	_ = e.Blob(m.KeyBlob)
	_ = e.Blob(m.Data)
	e.Uint32(m.Flags)
	return e.Bytes()
}

// SignResponse is SSH_AGENT_SIGN_RESPONSE.
type SignResponse struct {
	Signature []byte
}

// Serialize re-encodes the message, including its type octet.
func (m *SignResponse) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentSignResponse)
	_ = e.Blob(m.Signature)
	return e.Bytes()
}
