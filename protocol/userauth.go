package protocol

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// PublickeyHostboundMethod is the only userauth method a signed session
// binding is meaningful for.
const PublickeyHostboundMethod = "publickey-hostbound-v00@openssh.com"

const sshConnectionService = "ssh-connection"

// UserAuthRequest is the SSH_MSG_USERAUTH_REQUEST body a
// publickey-hostbound-v00@openssh.com signature is computed over: the
// transport session ID it is bound to, the authenticating username, and
// the client and server host keys involved in the exchange. It arrives as
// the data of a SIGN_REQUEST for a destination-constrained key; the
// session layer parses it to check the session ID against the last
// session binding and to take the username for the constraint check.
type UserAuthRequest struct {
	SessionID     []byte
	Username      string
	KeyType       string
	PublicKey     []byte
	ServerHostKey []byte
}

// ParseUserAuthRequest decodes data: session ID blob, message-type octet
// (must equal SSHMsgUserAuthRequest), username, service name (must equal
// "ssh-connection"), method name (must equal PublickeyHostboundMethod), a
// has-signature byte (must be nonzero), key type, public key blob, server
// host key blob.
func ParseUserAuthRequest(data []byte) (*UserAuthRequest, error) {
	d := wire.NewDecoder(data)
	sessionID, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	if len(sessionID) == 0 {
		return nil, agenterr.New(agenterr.BadFormat, "protocol.ParseUserAuthRequest", "empty session ID")
	}
	msgType, err := d.Byte()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	if msgType != SSHMsgUserAuthRequest {
		return nil, agenterr.New(agenterr.BadFormat, "protocol.ParseUserAuthRequest", "incorrect message type")
	}
	username, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	service, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	method, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	hasSignature, err := d.Byte()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	if service != sshConnectionService || method != PublickeyHostboundMethod || hasSignature == 0 {
		return nil, agenterr.New(agenterr.BadFormat, "protocol.ParseUserAuthRequest", "unsupported service, method or missing signature")
	}
	keyType, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	publicKey, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	serverHostKey, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseUserAuthRequest", err)
	}
	return &UserAuthRequest{
		SessionID:     sessionID,
		Username:      username,
		KeyType:       keyType,
		PublicKey:     publicKey,
		ServerHostKey: serverHostKey,
	}, nil
}
