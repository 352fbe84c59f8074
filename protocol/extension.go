package protocol

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// ExtensionRequest is SSH_AGENTC_EXTENSION: an extension name followed by
// an extension-specific payload occupying the rest of the message.
type ExtensionRequest struct {
	Name    string
	Payload []byte
}

// ParseExtensionRequest decodes body.
func ParseExtensionRequest(body []byte) (*ExtensionRequest, error) {
	d := wire.NewDecoder(body)
	name, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseExtensionRequest", err)
	}
	return &ExtensionRequest{Name: name, Payload: d.Rest()}, nil
}

// Serialize re-encodes the message, including its type octet.
func (m *ExtensionRequest) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentcExtension)
	_ = e.String(m.Name)
	e.Raw(m.Payload)
	return e.Bytes()
}

// ExtensionResponse is SSH_AGENT_EXTENSION_RESPONSE: an extension-specific
// payload with no name, since the client already knows which extension it
// asked for.
type ExtensionResponse struct {
	Payload []byte
}

// Serialize re-encodes the message, including its type octet.
func (m *ExtensionResponse) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentExtensionResponse)
	e.Raw(m.Payload)
	return e.Bytes()
}
