package keystore

import "time"

// Binding is one link in a session's session-bind chain: the host key
// the client proved possession of, the session ID that was signed, and
// whether the hop was reached by agent forwarding.
type Binding struct {
	HostKey   []byte
	SessionID []byte
	Forwarded bool
}

// BindingSource exposes just enough of a session's state for a key's
// destination-constraint check to walk it, without the keystore package
// depending on the session package.
type BindingSource interface {
	BindingFailed() bool
	Bindings() []Binding
}

// Key is one identity held by the key manager: a public half usable for
// listing and matching, a private half usable for signing, and the
// lifecycle metadata (lifetime, confirmation, destination constraints,
// lock state) the manager and session layer enforce around it.
type Key interface {
	Type() string
	PubBlob() []byte
	PublicKey() *PublicKey
	Comment() string
	SetComment(string)

	// Sign produces a signature over data. flags carries the
	// SSH_AGENT_RSA_SHA2_* bits from a sign request so RSA keys can
	// choose an algorithm.
	Sign(data []byte, flags uint32) ([]byte, error)

	// Lock encrypts the private material under passphrase and discards
	// the plaintext; Unlock reverses it. A failed encryption or decryption
	// (including a wrong passphrase) reports agenterr.Crypto; Lock on a key
	// that is already locked reports agenterr.InvalidState.
	Lock(passphrase []byte) error
	Unlock(passphrase []byte) error
	Locked() bool

	SetLifetime(seconds uint32)
	ExpireInSeconds() int
	Expired() bool

	ConfirmRequired() bool
	SetConfirmRequired(bool)

	DestConstraints() []DestinationConstraint
	SetDestConstraints([]DestinationConstraint)
	HasDestConstraints() bool
	PermittedByConstraints(fromKey, toKey []byte, user string, mi *MatchInfo) bool
	Permitted(session BindingSource, user string, mi *MatchInfo) bool
}

// Base implements the lifecycle bookkeeping shared by every concrete key
// adapter; adapters embed it and only need to supply Type, PubBlob,
// PublicKey, Sign, Lock, Unlock and Locked (lock state is adapter-local
// since it determines whether the adapter's own signer is live).
type Base struct {
	comment         string
	addedAt         time.Time
	lifetimeSeconds uint32
	confirmRequired bool
	destConstraints []DestinationConstraint
}

func (b *Base) Comment() string           { return b.comment }
func (b *Base) SetComment(c string)       { b.comment = c }
func (b *Base) ConfirmRequired() bool     { return b.confirmRequired }
func (b *Base) SetConfirmRequired(v bool) { b.confirmRequired = v }

// SetLifetime records the lifetime and resets the added-at clock, as the
// reference implementation does whenever a lifetime constraint is applied.
func (b *Base) SetLifetime(seconds uint32) {
	b.lifetimeSeconds = seconds
	b.addedAt = time.Now()
}

// ExpireInSeconds returns the remaining lifetime, or -1 for a key with no
// lifetime constraint.
func (b *Base) ExpireInSeconds() int {
	if b.lifetimeSeconds == 0 {
		return -1
	}
	elapsed := int(time.Since(b.addedAt).Seconds())
	return int(b.lifetimeSeconds) - elapsed
}

// Expired reports whether the key's lifetime constraint has elapsed.
func (b *Base) Expired() bool {
	if b.lifetimeSeconds == 0 {
		return false
	}
	return time.Since(b.addedAt).Seconds() >= float64(b.lifetimeSeconds)
}

func (b *Base) DestConstraints() []DestinationConstraint { return b.destConstraints }

func (b *Base) SetDestConstraints(c []DestinationConstraint) { b.destConstraints = c }

func (b *Base) HasDestConstraints() bool { return len(b.destConstraints) > 0 }

// PermittedByConstraints reports whether any destination constraint on
// the key allows a hop from fromKey to toKey as user.
func (b *Base) PermittedByConstraints(fromKey, toKey []byte, user string, mi *MatchInfo) bool {
	for _, c := range b.destConstraints {
		if c.Matches(fromKey, toKey, user, mi) {
			return true
		}
	}
	return false
}

// Permitted implements identity_permitted: a key with no destination
// constraints is always permitted; otherwise every hop in the session's
// binding chain must be consistent with some constraint, in order, and
// the last hop must not be a dangling forwarded binding with no
// following sign.
func (b *Base) Permitted(session BindingSource, user string, mi *MatchInfo) bool {
	if len(b.destConstraints) == 0 {
		return true
	}
	if session.BindingFailed() {
		return false
	}
	bindings := session.Bindings()
	if len(bindings) == 0 {
		return true
	}

	var fromKey []byte
	for i, s := range bindings {
		if len(s.HostKey) == 0 {
			return false
		}
		var userToCheck string
		if i == len(bindings)-1 {
			userToCheck = user
			if s.Forwarded && userToCheck != "" {
				return false
			}
		} else if !s.Forwarded {
			return false
		}
		if !b.PermittedByConstraints(fromKey, s.HostKey, userToCheck, mi) {
			return false
		}
		fromKey = s.HostKey
	}

	last := bindings[len(bindings)-1]
	if last.Forwarded && user == "" && !b.PermittedByConstraints(last.HostKey, nil, "", nil) {
		return false
	}
	return true
}
