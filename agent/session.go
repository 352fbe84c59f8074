// Package agent implements the per-connection SSH agent protocol state
// machine: message dispatch, the lock gate, destination-constraint and
// session-binding enforcement on sign requests, and the confirmation and
// extension hooks an embedder plugs in.
package agent

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/ayanrajpoot10/sshagent-core/extension"
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/protocol"
	"github.com/ayanrajpoot10/sshagent-core/securemem"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Confirmer lets an embedder gate sign requests behind an out-of-band
// user prompt (a notification, a hardware button, a PAM conversation).
// A Session with no Confirmer configured fails closed: any key requiring
// confirmation is always declined.
type Confirmer interface {
	// RequiresConfirmation reports whether key needs confirmation beyond
	// whatever its own ConfirmRequired constraint already demands.
	RequiresConfirmation(key keystore.Key) bool
	// ConfirmRequest blocks until the user approves or denies use of key.
	ConfirmRequest(key keystore.Key) bool
}

// ExtensionHook lets an embedder handle SSH_AGENTC_EXTENSION requests
// before they fall through to the built-in registry. handled reports
// whether the hook recognized the extension at all; when it did not, the
// session tries the extension registry next.
type ExtensionHook interface {
	HandleExtension(name string, payload []byte) (response []byte, handled bool, err error)
}

// Session is the protocol state machine for one client connection: it
// owns the connection's binding chain and forwarding flag and dispatches
// each incoming frame to the key manager, but holds no transport of its
// own — callers read frames with wire.ReadFrame, pass the body to Handle,
// and write whatever Handle returns back with wire.WriteFrame.
type Session struct {
	manager  *keystore.KeyManager
	factory  *keystore.KeyFactory
	registry *extension.Registry
	confirm  Confirmer
	extHook  ExtensionHook
	log      zerolog.Logger

	mu            sync.Mutex
	bindings      []keystore.Binding
	bindingFailed bool
	forwarded     bool
	matchInfo     keystore.MatchInfo
	fromHost      string
	toHost        string
	signBusy      bool
	listBusy      bool
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithConfirmer installs the confirmation callback used for keys carrying
// a confirm constraint or otherwise flagged by the embedder.
func WithConfirmer(c Confirmer) Option { return func(s *Session) { s.confirm = c } }

// WithExtensionHook installs an embedder-provided extension handler that
// is given first refusal on every SSH_AGENTC_EXTENSION request.
func WithExtensionHook(h ExtensionHook) Option { return func(s *Session) { s.extHook = h } }

// WithKeyFactory overrides the registry used to parse incoming key blobs.
// Defaults to keystore.DefaultFactory.
func WithKeyFactory(f *keystore.KeyFactory) Option { return func(s *Session) { s.factory = f } }

// WithExtensionRegistry overrides the registry used to resolve message
// extensions. Defaults to extension.DefaultRegistry.
func WithExtensionRegistry(r *extension.Registry) Option { return func(s *Session) { s.registry = r } }

// NewSession returns a session backed by manager, ready to process frames.
func NewSession(manager *keystore.KeyManager, opts ...Option) *Session {
	s := &Session{
		manager:  manager,
		factory:  keystore.DefaultFactory,
		registry: extension.DefaultRegistry,
		log:      log.With().Str("component", "Session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFromHost records the hop the connection arrived from, informational
// only (surfaced to a Confirmer's prompt).
func (s *Session) SetFromHost(host string) { s.mu.Lock(); s.fromHost = host; s.mu.Unlock() }

// SetToHost records the hop the connection is destined for.
func (s *Session) SetToHost(host string) { s.mu.Lock(); s.toHost = host; s.mu.Unlock() }

// FromHost returns the value set by SetFromHost.
func (s *Session) FromHost() string { s.mu.Lock(); defer s.mu.Unlock(); return s.fromHost }

// ToHost returns the value set by SetToHost.
func (s *Session) ToHost() string { s.mu.Lock(); defer s.mu.Unlock(); return s.toHost }

// IsForwarded reports whether any session-bind extension processed so far
// declared itself forwarded.
func (s *Session) IsForwarded() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.forwarded }

// MatchInfo returns the hop/user information recorded by the most recent
// successful destination-constraint check.
func (s *Session) MatchInfo() keystore.MatchInfo { s.mu.Lock(); defer s.mu.Unlock(); return s.matchInfo }

// BindingFailed implements keystore.BindingSource.
func (s *Session) BindingFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindingFailed
}

// Bindings implements keystore.BindingSource.
func (s *Session) Bindings() []keystore.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]keystore.Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Bind implements extension.Session; the session-bind extension calls it
// to record a verified (or, for a forwarding hop, unsigned) host binding.
func (s *Session) Bind(b keystore.Binding) {
	s.mu.Lock()
	s.bindings = append(s.bindings, b)
	if b.Forwarded {
		s.forwarded = true
	}
	s.mu.Unlock()
}

// Handle processes one frame body (post length-prefix, pre length-prefix
// on the way out) and returns the frame body to send back. It never
// returns an error: every failure this protocol defines is itself a
// valid response (SSH_AGENT_FAILURE).
func (s *Session) Handle(frame []byte) []byte {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("malformed frame")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}

	if s.manager.Locked() && env.Type != protocol.AgentcUnlock {
		s.log.Warn().Uint8("type", env.Type).Msg("rejecting message while locked")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}

	switch env.Type {
	case protocol.AgentcAddIdentity, protocol.AgentcAddIdentityConstrained:
		return s.handleAddIdentity(env)
	case protocol.AgentcRemoveIdentity:
		return s.handleRemoveIdentity(env)
	case protocol.AgentcRemoveAllIdentities, protocol.AgentcRemoveAllRSAIdentities:
		s.manager.RemoveAllKeys()
		return protocol.SimpleMessage(protocol.AgentSuccess)
	case protocol.AgentcSignRequest:
		return s.handleSignRequest(env)
	case protocol.AgentcRequestIdentities:
		return s.handleRequestIdentities()
	case protocol.AgentcExtension:
		return s.handleExtension(env)
	case protocol.AgentcLock:
		return s.handleLock(env)
	case protocol.AgentcUnlock:
		return s.handleUnlock(env)
	case protocol.AgentcAddSmartcardKey, protocol.AgentcRemoveSmartcardKey, protocol.AgentcAddSmartcardKeyConstrained:
		s.log.Warn().Msg("smartcard-backed keys are not supported")
		return protocol.SimpleMessage(protocol.AgentFailure)
	default:
		s.log.Error().Uint8("type", env.Type).Msg("unsupported message type")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
}

func (s *Session) handleAddIdentity(env protocol.Envelope) []byte {
	constrained := env.Type == protocol.AgentcAddIdentityConstrained
	msg, err := protocol.ParseAddIdentity(env.Body, s.factory, constrained)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse add-identity message")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}

	var addErr error
	if constrained {
		_, addErr = s.manager.AddConstrainedKey(msg.KeyType, msg.KeyBlob, msg.Comment, msg.LifetimeSeconds, msg.ConfirmRequired, msg.DestConstraints)
	} else {
		_, addErr = s.manager.AddKey(msg.KeyType, msg.KeyBlob, msg.Comment)
	}
	if addErr != nil {
		s.log.Error().Err(addErr).Msg("failed to add identity")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	return protocol.SimpleMessage(protocol.AgentSuccess)
}

func (s *Session) handleRemoveIdentity(env protocol.Envelope) []byte {
	msg, err := protocol.ParseRemoveIdentity(env.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse remove-identity message")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	_ = s.manager.RemoveKey(msg.KeyBlob)
	return protocol.SimpleMessage(protocol.AgentSuccess)
}

func (s *Session) handleSignRequest(env protocol.Envelope) []byte {
	release := s.enterExclusive(&s.signBusy, "sign request")
	defer release()

	sig, err := s.doSign(env.Body)
	if err != nil {
		s.log.Warn().Err(err).Msg("sign request refused")
		s.mu.Lock()
		s.matchInfo = keystore.MatchInfo{}
		s.mu.Unlock()
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	return (&protocol.SignResponse{Signature: sig}).Serialize()
}

func (s *Session) doSign(body []byte) ([]byte, error) {
	req, err := protocol.ParseSignRequest(body)
	if err != nil {
		return nil, err
	}
	key, ok := s.manager.GetKey(req.KeyBlob)
	if !ok {
		return nil, agenterr.New(agenterr.NotFound, "agent.Session.doSign", "key not found for signing")
	}

	if key.HasDestConstraints() {
		bindings := s.Bindings()
		if len(bindings) == 0 {
			return nil, agenterr.New(agenterr.Denied, "agent.Session.doSign", "session has no bindings")
		}
		userauth, err := protocol.ParseUserAuthRequest(req.Data)
		if err != nil {
			return nil, err
		}
		var mi keystore.MatchInfo
		if !key.Permitted(s, userauth.Username, &mi) {
			return nil, agenterr.New(agenterr.Denied, "agent.Session.doSign", "key not permitted by destination constraints")
		}
		if !bytes.Equal(userauth.SessionID, bindings[len(bindings)-1].SessionID) {
			return nil, agenterr.New(agenterr.Denied, "agent.Session.doSign", "session ID does not match the last session binding")
		}
		s.mu.Lock()
		s.matchInfo = mi
		s.mu.Unlock()
	}

	if s.needsConfirmation(key) {
		if !s.confirmRequest(key) {
			s.manager.EmitKeyDeclined(key, s)
			return nil, agenterr.New(agenterr.Denied, "agent.Session.doSign", "sign request declined by confirmation")
		}
	}

	sig, err := key.Sign(req.Data, req.Flags)
	if err != nil {
		return nil, err
	}
	s.manager.EmitKeyUsed(key, s)
	return sig, nil
}

func (s *Session) needsConfirmation(key keystore.Key) bool {
	if key.ConfirmRequired() {
		return true
	}
	if s.confirm != nil {
		return s.confirm.RequiresConfirmation(key)
	}
	return false
}

// confirmRequest fails closed: a key that needs confirmation but has no
// Confirmer wired up is always declined, never silently allowed.
func (s *Session) confirmRequest(key keystore.Key) bool {
	if s.confirm == nil {
		return false
	}
	return s.confirm.ConfirmRequest(key)
}

func (s *Session) handleRequestIdentities() []byte {
	release := s.enterExclusive(&s.listBusy, "request-identities")
	defer release()

	items := s.manager.ListKeys(s)
	return (&protocol.IdentitiesAnswer{Identities: items}).Serialize()
}

func (s *Session) handleExtension(env protocol.Envelope) []byte {
	resp, err := s.doExtension(env.Body)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to process extension message")
		s.mu.Lock()
		s.bindingFailed = true
		s.bindings = nil
		s.mu.Unlock()
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	return resp
}

func (s *Session) doExtension(body []byte) ([]byte, error) {
	req, err := protocol.ParseExtensionRequest(body)
	if err != nil {
		return nil, err
	}

	if s.extHook != nil {
		payload, handled, err := s.extHook.HandleExtension(req.Name, req.Payload)
		if err != nil {
			return nil, err
		}
		if handled {
			return extensionReply(payload), nil
		}
	}

	ext, err := s.registry.CreateMessageExtension(req.Name)
	if err != nil {
		return nil, err
	}
	if err := ext.Parse(req.Payload); err != nil {
		return nil, err
	}
	payload, err := ext.Handle(s)
	if err != nil {
		return nil, err
	}
	return extensionReply(payload), nil
}

func extensionReply(payload []byte) []byte {
	if len(payload) > 0 {
		return (&protocol.ExtensionResponse{Payload: payload}).Serialize()
	}
	return protocol.SimpleMessage(protocol.AgentSuccess)
}

func (s *Session) handleLock(env protocol.Envelope) []byte {
	req, err := protocol.ParseLockRequest(protocol.AgentcLock, env.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse lock message")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	// The passphrase arrives inside env.Body, which the caller owns; move it
	// into locked, zero-on-release memory for the short time it takes to
	// hash and forget it rather than leaving a plaintext copy scattered
	// across the message's lifetime.
	pass := securemem.FromBytes(req.Passphrase)
	defer pass.Release()
	if err := s.manager.Lock(pass.Bytes()); err != nil {
		s.log.Error().Err(err).Msg("failed to lock")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	return protocol.SimpleMessage(protocol.AgentSuccess)
}

func (s *Session) handleUnlock(env protocol.Envelope) []byte {
	req, err := protocol.ParseLockRequest(protocol.AgentcUnlock, env.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse unlock message")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	pass := securemem.FromBytes(req.Passphrase)
	defer pass.Release()
	if err := s.manager.Unlock(pass.Bytes()); err != nil {
		s.log.Warn().Err(err).Msg("failed to unlock")
		return protocol.SimpleMessage(protocol.AgentFailure)
	}
	return protocol.SimpleMessage(protocol.AgentSuccess)
}

// enterExclusive guards an operation the reference implementation runs on
// a dedicated single-slot worker thread per Session: a second concurrent
// call on the same Session is a caller bug (one Session must serve one
// connection), not a request to queue, so it panics rather than blocking
// or silently interleaving state.
func (s *Session) enterExclusive(busy *bool, op string) func() {
	s.mu.Lock()
	if *busy {
		s.mu.Unlock()
		panic(fmt.Sprintf("agent: concurrent %s on a single Session", op))
	}
	*busy = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		*busy = false
		s.mu.Unlock()
	}
}
