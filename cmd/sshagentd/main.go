// Command sshagentd is a demonstration daemon around the sshagent-core
// library: it listens on a Unix domain socket, speaks the SSH agent wire
// protocol on every accepted connection via agent.Session, and exposes
// lock/unlock as separate client subcommands, replacing the teacher's
// os.Args[1] switch in cmd/ssh-ify/main.go with cobra's command tree.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ayanrajpoot10/sshagent-core/agent"
	"github.com/ayanrajpoot10/sshagent-core/config"
	_ "github.com/ayanrajpoot10/sshagent-core/keys" // registers key adapters with keystore.DefaultFactory
	"github.com/ayanrajpoot10/sshagent-core/keystore"
	"github.com/ayanrajpoot10/sshagent-core/logging"
	"github.com/ayanrajpoot10/sshagent-core/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var pamUser string

func main() {
	logging.Init()

	root := &cobra.Command{
		Use:   "sshagentd",
		Short: "Demonstration daemon for the sshagent-core SSH agent library",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen on a Unix socket and serve SSH agent protocol connections",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&pamUser, "pam-user", "", "verify the lock passphrase against this system account via PAM instead of the bcrypt file")
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "lock",
		Short: "Lock the running daemon",
		RunE:  runLockCmd(protocol.AgentcLock),
	})
	root.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Unlock the running daemon",
		RunE:  runLockCmd(protocol.AgentcUnlock),
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	socketPath, err := config.SocketPath()
	if err != nil {
		return err
	}

	manager := keystore.NewKeyManager(keystore.DefaultFactory)
	manager.RegisterObserver(newLogObserver())

	if pamUser != "" {
		manager.SetLockProvider(newPAMLockProvider(pamUser))
	} else {
		dbPath, err := config.LockDBPath()
		if err != nil {
			return err
		}
		provider, err := newBcryptLockProvider(dbPath)
		if err != nil {
			return err
		}
		manager.SetLockProvider(provider)
	}

	srv := newServer(socketPath, func() *agent.Session {
		return agent.NewSession(manager)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutting down")
		_ = srv.close()
	}()

	return srv.listenAndServe()
}

func runLockCmd(msgType byte) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		socketPath, err := config.SocketPath()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, "Passphrase: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		passphrase := []byte(strings.TrimRight(line, "\r\n"))
		return sendLockRequest(socketPath, msgType, passphrase)
	}
}
