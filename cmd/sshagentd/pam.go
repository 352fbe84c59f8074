package main

import (
	pam "github.com/msteinert/pam/v2"
	"github.com/rs/zerolog/log"
)

// pamAuthenticate starts a PAM conversation for service/user, supplying
// password for every hidden-echo prompt, the same StartFunc/Authenticate
// call shape as the teacher's ssh/auth.go pamAuth.
func pamAuthenticate(service, user, password string) bool {
	t, err := pam.StartFunc(service, user, func(s pam.Style, msg string) (string, error) {
		switch s {
		case pam.PromptEchoOff:
			return password, nil
		case pam.TextInfo:
			return "", nil
		default:
			return "", nil
		}
	})
	if err != nil {
		log.Error().Err(err).Str("user", user).Msg("pam: failed to start session")
		return false
	}
	if err := t.Authenticate(0); err != nil {
		log.Warn().Err(err).Str("user", user).Msg("pam: authentication failed")
		return false
	}
	return true
}
