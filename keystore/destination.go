package keystore

import (
	"bytes"
	"fmt"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// HopKey is one public key (or CA key) accepted at a hop in a destination
// constraint. CA key matching is not implemented; a constraint whose only
// keys are marked as CA will never match.
type HopKey struct {
	Key  []byte
	IsCA bool
}

// Hop describes one endpoint of a destination constraint: an optional
// user, an optional hostname, and the set of host keys accepted there.
type Hop struct {
	User     string
	Hostname string
	Keys     []HopKey
}

// ParseHop decodes a from-hop or to-hop blob: user string, hostname
// string, an extensions blob (must be empty; nested extensions on a hop
// are not supported), then zero or more (key blob, is_ca byte) pairs.
func ParseHop(data []byte) (Hop, error) {
	d := wire.NewDecoder(data)
	user, err := d.String()
	if err != nil {
		return Hop{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseHop", err)
	}
	hostname, err := d.String()
	if err != nil {
		return Hop{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseHop", err)
	}
	extensions, err := d.Blob()
	if err != nil {
		return Hop{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseHop", err)
	}
	if len(extensions) > 0 {
		return Hop{}, agenterr.New(agenterr.BadFormat, "keystore.ParseHop", "extensions in hop descriptor not supported")
	}
	h := Hop{User: user, Hostname: hostname}
	for d.Remaining() > 0 {
		key, err := d.Blob()
		if err != nil {
			return Hop{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseHop", err)
		}
		isCA, err := d.Byte()
		if err != nil {
			return Hop{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseHop", err)
		}
		h.Keys = append(h.Keys, HopKey{Key: key, IsCA: isCA != 0})
	}
	return h, nil
}

// Serialize encodes the hop back into its wire form.
func (h Hop) Serialize() []byte {
	e := wire.NewEncoder()
	_ = e.String(h.User)
	_ = e.String(h.Hostname)
	_ = e.Blob(nil) // no extensions
	for _, k := range h.Keys {
		_ = e.Blob(k.Key)
		if k.IsCA {
			e.Byte(1)
		} else {
			e.Byte(0)
		}
	}
	return e.Bytes()
}

// MatchesKey reports whether key is one of the hop's accepted keys.
// CA-signed keys are recognized in the wire format but not verified; a
// hop entry marked IsCA is always skipped.
func (h Hop) MatchesKey(key []byte) bool {
	for _, k := range h.Keys {
		if len(k.Key) == 0 || k.IsCA {
			continue
		}
		if bytes.Equal(k.Key, key) {
			return true
		}
	}
	return false
}

func (h Hop) String() string {
	if h.Hostname == "" && len(h.Keys) == 0 && h.User == "" {
		return "Any"
	}
	s := ""
	if h.User != "" {
		s += h.User + "@"
	}
	s += h.Hostname
	if len(h.Keys) > 0 {
		s += fmt.Sprintf(" (%d keys)", len(h.Keys))
	}
	return s
}

// MatchInfo records which hop matched a permission check, for diagnostics
// and confirmation prompts.
type MatchInfo struct {
	From string
	To   string
	User string
}

// DestinationConstraint restricts a key to being used only when hopping
// from one host to another, optionally as a specific user.
type DestinationConstraint struct {
	From Hop
	To   Hop
}

// ParseDestinationConstraint decodes one destination-constraint blob:
// from-hop blob, to-hop blob, then an extensions blob that must be empty.
func ParseDestinationConstraint(data []byte) (DestinationConstraint, error) {
	d := wire.NewDecoder(data)
	fromBlob, err := d.Blob()
	if err != nil {
		return DestinationConstraint{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseDestinationConstraint", err)
	}
	toBlob, err := d.Blob()
	if err != nil {
		return DestinationConstraint{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseDestinationConstraint", err)
	}
	extensions, err := d.Blob()
	if err != nil {
		return DestinationConstraint{}, agenterr.Wrap(agenterr.BadFormat, "keystore.ParseDestinationConstraint", err)
	}
	if len(extensions) > 0 {
		return DestinationConstraint{}, agenterr.New(agenterr.BadFormat, "keystore.ParseDestinationConstraint", "extensions in destination constraint not supported")
	}
	from, err := ParseHop(fromBlob)
	if err != nil {
		return DestinationConstraint{}, err
	}
	to, err := ParseHop(toBlob)
	if err != nil {
		return DestinationConstraint{}, err
	}
	if (from.Hostname == "") != (len(from.Keys) == 0) || from.User != "" {
		return DestinationConstraint{}, agenterr.New(agenterr.BadFormat, "keystore.ParseDestinationConstraint", "invalid from-hop")
	}
	if to.Hostname == "" || len(to.Keys) == 0 {
		return DestinationConstraint{}, agenterr.New(agenterr.BadFormat, "keystore.ParseDestinationConstraint", "invalid to-hop")
	}
	return DestinationConstraint{From: from, To: to}, nil
}

// Serialize encodes the constraint back into its wire form.
func (c DestinationConstraint) Serialize() []byte {
	e := wire.NewEncoder()
	_ = e.Blob(c.From.Serialize())
	_ = e.Blob(c.To.Serialize())
	_ = e.Blob(nil) // no extensions
	return e.Bytes()
}

// Matches implements the per-constraint permission test: the hop the
// signature is coming from must accept fromKey (or be the wildcard "any"
// hop when fromKey is empty), the destination hop must accept toKey when
// one is given, and if both the destination hop and user name a user they
// must be equal exactly (an empty user on either side matches any). On success, when mi is non-nil, it is filled in with the
// hostnames and user that matched.
func (c DestinationConstraint) Matches(fromKey, toKey []byte, user string, mi *MatchInfo) bool {
	if len(fromKey) == 0 {
		if c.From.Hostname != "" || len(c.From.Keys) > 0 {
			return false
		}
	} else if !c.From.MatchesKey(fromKey) {
		return false
	}

	if len(toKey) > 0 && !c.To.MatchesKey(toKey) {
		return false
	}

	if c.To.User != "" && user != "" && c.To.User != user {
		return false
	}

	if mi != nil {
		mi.From = c.From.Hostname
		mi.To = c.To.Hostname
		mi.User = user
	}
	return true
}
