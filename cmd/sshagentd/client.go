package main

import (
	"fmt"
	"net"

	"github.com/ayanrajpoot10/sshagent-core/protocol"
	"github.com/ayanrajpoot10/sshagent-core/wire"
)

// sendLockRequest is used by the lock/unlock subcommands: it dials the
// running daemon's socket, sends one SSH_AGENTC_LOCK or
// SSH_AGENTC_UNLOCK frame carrying passphrase, and reports whether the
// daemon replied with success.
func sendLockRequest(socketPath string, msgType byte, passphrase []byte) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	req := (&protocol.LockRequest{Type: msgType, Passphrase: passphrase}).Serialize()
	if err := wire.WriteFrame(conn, req); err != nil {
		return err
	}
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		return err
	}
	env, err := protocol.DecodeEnvelope(reply)
	if err != nil {
		return err
	}
	if env.Type != protocol.AgentSuccess {
		return fmt.Errorf("daemon refused the request")
	}
	return nil
}
