package main

import (
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/logging"
	"github.com/rs/zerolog"
)

// logObserver is the sample keystore.Observer wired into the demo daemon:
// every lifecycle event becomes one structured log line, named after the
// component the way agent.Session and keystore.KeyManager already are.
type logObserver struct {
	log zerolog.Logger
}

func newLogObserver() *logObserver {
	return &logObserver{log: logging.For("Observer")}
}

func (o *logObserver) OnKeyAdded(key keystore.Key) {
	o.log.Info().Str("fingerprint", key.PublicKey().Fingerprint(keystore.Sha256Base64)).Str("comment", key.Comment()).Msg("key added")
}

func (o *logObserver) OnKeyPreRemove(key keystore.Key) {
	o.log.Debug().Str("fingerprint", key.PublicKey().Fingerprint(keystore.Sha256Base64)).Msg("key about to be removed")
}

func (o *logObserver) OnKeyRemoved(fingerprint string) {
	o.log.Info().Str("fingerprint", fingerprint).Msg("key removed")
}

func (o *logObserver) OnKeysCleared() {
	o.log.Info().Msg("all keys cleared")
}

func (o *logObserver) OnKeyUsed(key keystore.Key, session keystore.BindingSource) {
	o.log.Info().Str("fingerprint", key.PublicKey().Fingerprint(keystore.Sha256Base64)).Msg("key used to sign")
}

func (o *logObserver) OnKeyDeclined(key keystore.Key, session keystore.BindingSource) {
	o.log.Warn().Str("fingerprint", key.PublicKey().Fingerprint(keystore.Sha256Base64)).Msg("sign request declined")
}

func (o *logObserver) OnLocked() {
	o.log.Info().Msg("agent locked")
}

func (o *logObserver) OnUnlocked() {
	o.log.Info().Msg("agent unlocked")
}
