// Package extension implements the two OpenSSH agent extension registries
// (message extensions carried by SSH_AGENTC_EXTENSION, and constraint
// extensions carried by a tag-255 key constraint) and the two built-in
// extensions the reference implementation ships: session-bind@openssh.com
// and restrict-destination-v00@openssh.com.
package extension

import (
	"fmt"
	"sync"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
)

// MessageExtension is an extension that rides on an
// SSH_AGENTC_EXTENSION request. Parse decodes the extension-specific
// payload; Handle carries out the extension's effect and returns the
// bytes to return in the SSH_AGENT_EXTENSION_RESPONSE reply, or nil for a
// bare SSH_AGENT_SUCCESS.
type MessageExtension interface {
	Parse(data []byte) error
	Handle(session Session) ([]byte, error)
}

// Session is the slice of agent session state a message extension needs.
// It intentionally mirrors keystore.BindingSource plus a bind operation,
// so this package needs no import of the session package itself.
type Session interface {
	keystore.BindingSource
	Bind(binding keystore.Binding)
}

// MessageExtensionFactory constructs a fresh, unconfigured instance of a
// registered message extension.
type MessageExtensionFactory func() MessageExtension

// ConstraintExtensionFactory constructs a fresh, unconfigured instance of
// a registered constraint extension.
type ConstraintExtensionFactory func() ConstraintExtension

// ConstraintExtension is a tag-255 key constraint extension: Parse decodes
// its payload and Apply folds its effect into the key being constrained.
type ConstraintExtension interface {
	Parse(data []byte) error
	Apply(destConstraints *[]keystore.DestinationConstraint)
}

// Registry holds the name-to-factory maps for both extension kinds. A
// single Registry is normally shared process-wide via DefaultRegistry.
type Registry struct {
	mu          sync.RWMutex
	messages    map[string]MessageExtensionFactory
	constraints map[string]ConstraintExtensionFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		messages:    make(map[string]MessageExtensionFactory),
		constraints: make(map[string]ConstraintExtensionFactory),
	}
}

// DefaultRegistry is populated by this package's init with the two
// built-in extensions.
var DefaultRegistry = NewRegistry()

// RegisterMessageExtension adds name to the registry. Registering the
// same name twice is a programming error and panics.
func (r *Registry) RegisterMessageExtension(name string, factory MessageExtensionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[name]; exists {
		panic(fmt.Sprintf("extension: message extension %q already registered", name))
	}
	r.messages[name] = factory
}

// RegisterConstraintExtension adds name to the registry. Registering the
// same name twice is a programming error and panics.
func (r *Registry) RegisterConstraintExtension(name string, factory ConstraintExtensionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constraints[name]; exists {
		panic(fmt.Sprintf("extension: constraint extension %q already registered", name))
	}
	r.constraints[name] = factory
}

// CreateMessageExtension instantiates the message extension registered
// under name, or agenterr.UnknownType if none is.
func (r *Registry) CreateMessageExtension(name string) (MessageExtension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.messages[name]
	if !ok {
		return nil, agenterr.New(agenterr.UnknownType, "extension.Registry.CreateMessageExtension", "unknown message extension: "+name)
	}
	return factory(), nil
}

// CreateConstraintExtension instantiates the constraint extension
// registered under name, or agenterr.UnknownType if none is.
func (r *Registry) CreateConstraintExtension(name string) (ConstraintExtension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.constraints[name]
	if !ok {
		return nil, agenterr.New(agenterr.UnknownType, "extension.Registry.CreateConstraintExtension", "unknown constraint extension: "+name)
	}
	return factory(), nil
}

// KnowsMessageExtension reports whether name is a registered message
// extension, without instantiating it.
func (r *Registry) KnowsMessageExtension(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.messages[name]
	return ok
}
