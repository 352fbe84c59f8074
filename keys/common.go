package keys

import "crypto/rand"

// SSH_AGENT_RSA_SHA2_256 / _512, the sign-request flag bits an RSA key
// uses to select its signature algorithm (draft-ietf-sshm-ssh-agent
// section 6.3).
const (
	signFlagRSASHA256 uint32 = 1 << 1
	signFlagRSASHA512 uint32 = 1 << 2
)

var randReader = rand.Reader
