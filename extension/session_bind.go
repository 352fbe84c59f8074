package extension

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"golang.org/x/crypto/ssh"
)

// SessionBindExtensionName is the well-known name of the built-in
// session-bind extension.
const SessionBindExtensionName = "session-bind@openssh.com"

func init() {
	DefaultRegistry.RegisterMessageExtension(SessionBindExtensionName, func() MessageExtension {
		return &SessionBind{}
	})
}

// SessionBind implements session-bind@openssh.com: it binds a signed SSH
// transport session ID to a host key, so later sign requests can be
// checked against the chain of hosts a forwarded connection passed
// through. An empty signature records an unauthenticated forwarding hop
// (used when the agent is itself being forwarded further).
type SessionBind struct {
	HostKey   []byte
	SessionID []byte
	Signature []byte
	Forwarded bool

	pub *keystore.PublicKey
}

// Parse decodes the extension payload: host key blob, session ID blob,
// signature blob, forwarded byte.
func (s *SessionBind) Parse(data []byte) error {
	d := wire.NewDecoder(data)
	hostKey, err := d.Blob()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	sessionID, err := d.Blob()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	signature, err := d.Blob()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	forwarded, err := d.Byte()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	s.HostKey = hostKey
	s.SessionID = sessionID
	s.Signature = signature
	s.Forwarded = forwarded != 0

	hd := wire.NewDecoder(hostKey)
	keyType, err := hd.String()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	pub, err := keystore.DefaultFactory.CreatePubKey(keyType, hostKey)
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
	}
	s.pub = pub

	if len(signature) > 0 {
		sshPub, err := ssh.ParsePublicKey(hostKey)
		if err != nil {
			return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
		}
		var sig ssh.Signature
		if err := ssh.Unmarshal(signature, &sig); err != nil {
			return agenterr.Wrap(agenterr.BadFormat, "extension.SessionBind.Parse", err)
		}
		if err := sshPub.Verify(sessionID, &sig); err != nil {
			return agenterr.Wrap(agenterr.Denied, "extension.SessionBind.Parse", err)
		}
	}
	return nil
}

// Handle records the binding on session and returns no reply payload; a
// successful bind is answered with a bare SSH_AGENT_SUCCESS.
func (s *SessionBind) Handle(session Session) ([]byte, error) {
	session.Bind(keystore.Binding{
		HostKey:   s.HostKey,
		SessionID: s.SessionID,
		Forwarded: s.Forwarded,
	})
	return nil, nil
}
