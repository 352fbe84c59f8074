package protocol

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/extension"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// AddIdentity is SSH_AGENTC_ADD_IDENTITY / SSH_AGENTC_ADD_IDENTITY_CONSTRAINED.
// KeyBlob holds exactly the type-specific private key fields: the leading
// key-type string and the trailing comment are stored separately.
type AddIdentity struct {
	Constrained bool
	KeyType     string
	KeyBlob     []byte
	Comment     string

	ConfirmRequired bool
	LifetimeSeconds uint32
	DestConstraints []keystore.DestinationConstraint
}

// ParseAddIdentity decodes body (the frame after the type octet) using
// factory to locate the end of the type-specific key blob. constrained
// selects whether trailing key-constraint TLVs are expected.
func ParseAddIdentity(body []byte, factory *keystore.KeyFactory, constrained bool) (*AddIdentity, error) {
	d := wire.NewDecoder(body)
	keyType, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
	}
	start := len(body) - d.Remaining()
	if err := factory.SkipKeyBlob(keyType, d); err != nil {
		if agenterr.Is(err, agenterr.UnknownType) {
			return nil, err
		}
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
	}
	end := len(body) - d.Remaining()
	keyBlob := body[start:end]

	comment, err := d.String()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
	}

	msg := &AddIdentity{Constrained: constrained, KeyType: keyType, KeyBlob: keyBlob, Comment: comment}
	if !constrained {
		return msg, nil
	}

	for d.Remaining() > 0 {
		tag, err := d.Byte()
		if err != nil {
			return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
		}
		switch tag {
		case ConstrainConfirm:
			msg.ConfirmRequired = true
		case ConstrainLifetime:
			lifetime, err := d.Uint32()
			if err != nil {
				return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
			}
			msg.LifetimeSeconds = lifetime
		case ConstrainExtension:
			extName, err := d.String()
			if err != nil {
				return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseAddIdentity", err)
			}
			ext, err := extension.DefaultRegistry.CreateConstraintExtension(extName)
			if err != nil {
				return nil, err
			}
			if err := ext.Parse(d.Rest()); err != nil {
				return nil, err
			}
			// constraint extensions consume the rest of the message body;
			// draft-ietf-sshm-ssh-agent doesn't define more than one
			// per ADD_IDENTITY_CONSTRAINED request.
			ext.Apply(&msg.DestConstraints)
			return msg, nil
		default:
			return nil, agenterr.New(agenterr.BadFormat, "protocol.ParseAddIdentity", "unknown key constraint tag")
		}
	}
	return msg, nil
}

// Serialize re-encodes the message, including its type octet. Unlike the
// reference implementation, a restrict-destination constraint is
// re-emitted as a tag-255 extension TLV so the message round-trips
// losslessly; dropping it on serialize would silently widen the key's
// permitted destinations on any code path that re-serializes a parsed
// AddIdentity (audit logging, a persistent identity store).
func (m *AddIdentity) Serialize() []byte {
	e := wire.NewEncoder()
	if m.Constrained {
		e.Byte(AgentcAddIdentityConstrained)
	} else {
		e.Byte(AgentcAddIdentity)
	}
	_ = e.String(m.KeyType)
	e.Raw(m.KeyBlob)
	_ = e.String(m.Comment)
	if m.Constrained {
		if m.ConfirmRequired {
			e.Byte(ConstrainConfirm)
		}
		if m.LifetimeSeconds > 0 {
			e.Byte(ConstrainLifetime)
			e.Uint32(m.LifetimeSeconds)
		}
		if len(m.DestConstraints) > 0 {
			e.Byte(ConstrainExtension)
			_ = e.String(extension.RestrictDestinationExtensionName)
			rd := &extension.RestrictDestination{Constraints: m.DestConstraints}
			e.Raw(rd.Serialize())
		}
	}
	return e.Bytes()
}

// RemoveIdentity is SSH_AGENTC_REMOVE_IDENTITY.
type RemoveIdentity struct {
	KeyBlob []byte
}

// ParseRemoveIdentity decodes body.
func ParseRemoveIdentity(body []byte) (*RemoveIdentity, error) {
	d := wire.NewDecoder(body)
	blob, err := d.Blob()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BadFormat, "protocol.ParseRemoveIdentity", err)
	}
	return &RemoveIdentity{KeyBlob: blob}, nil
}

// Serialize re-encodes the message, including its type octet.
func (m *RemoveIdentity) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentcRemoveIdentity)
	_ = e.Blob(m.KeyBlob)
	return e.Bytes()
}

// IdentitiesAnswer is SSH_AGENT_IDENTITIES_ANSWER.
type IdentitiesAnswer struct {
	Identities []keystore.PubKeyItem
}

// Serialize re-encodes the message, including its type octet.
func (m *IdentitiesAnswer) Serialize() []byte {
	e := wire.NewEncoder()
	e.Byte(AgentIdentitiesAnswer)
	e.Uint32(uint32(len(m.Identities)))
	for _, id := range m.Identities {
		_ = e.Blob(id.Blob)
		_ = e.String(id.Comment)
	}
	return e.Bytes()
}
