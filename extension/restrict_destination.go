package extension

import (
	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// RestrictDestinationExtensionName is the well-known name of the built-in
// destination-restriction constraint extension.
const RestrictDestinationExtensionName = "restrict-destination-v00@openssh.com"

func init() {
	DefaultRegistry.RegisterConstraintExtension(RestrictDestinationExtensionName, func() ConstraintExtension {
		return &RestrictDestination{}
	})
}

// RestrictDestination implements restrict-destination-v00@openssh.com: a
// key constraint carrying one or more keystore.DestinationConstraint
// entries, wrapped in a single outer length-prefixed blob.
type RestrictDestination struct {
	Constraints []keystore.DestinationConstraint
}

// Parse decodes the outer blob as a concatenation of length-prefixed
// per-constraint blobs, each parsed with keystore.ParseDestinationConstraint.
func (r *RestrictDestination) Parse(data []byte) error {
	outer := wire.NewDecoder(data)
	inner, err := outer.Blob()
	if err != nil {
		return agenterr.Wrap(agenterr.BadFormat, "extension.RestrictDestination.Parse", err)
	}
	d := wire.NewDecoder(inner)
	if d.Remaining() == 0 {
		return agenterr.New(agenterr.BadFormat, "extension.RestrictDestination.Parse", "no destination constraints given")
	}
	for d.Remaining() > 0 {
		blob, err := d.Blob()
		if err != nil {
			return agenterr.Wrap(agenterr.BadFormat, "extension.RestrictDestination.Parse", err)
		}
		c, err := keystore.ParseDestinationConstraint(blob)
		if err != nil {
			return err
		}
		r.Constraints = append(r.Constraints, c)
	}
	return nil
}

// Serialize re-encodes the constraint back into its wire form, the shape
// AddIdentityMessage needs to round-trip an ADD_IDENTITY_CONSTRAINED
// request that carried this extension.
func (r *RestrictDestination) Serialize() []byte {
	inner := wire.NewEncoder()
	for _, c := range r.Constraints {
		_ = inner.Blob(c.Serialize())
	}
	outer := wire.NewEncoder()
	_ = outer.Blob(inner.Bytes())
	return outer.Bytes()
}

// Apply appends the parsed constraints to destConstraints.
func (r *RestrictDestination) Apply(destConstraints *[]keystore.DestinationConstraint) {
	*destConstraints = append(*destConstraints, r.Constraints...)
}
