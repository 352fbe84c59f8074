package main

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ayanrajpoot10/sshagent-core/agent"
	"github.com/ayanrajpoot10/sshagent-core/logging"
	"github.com/ayanrajpoot10/sshagent-core/wire"
	"github.com/google/uuid"
)

// server listens on a Unix domain socket and hands each accepted
// connection its own agent.Session, mirroring the teacher's tunnel.Server
// registry-of-active-connections shape but built around net.Listener's
// blocking Accept instead of a polling deadline loop, since a Unix socket
// listener can simply be closed to unblock it on shutdown.
type server struct {
	socketPath string
	manager    sessionFactory

	mu      sync.Mutex
	conns   sync.Map // map[net.Conn]struct{}
	count   int32
	closing bool
	ln      net.Listener
}

// sessionFactory builds a fresh per-connection agent.Session; a function
// type rather than a *keystore.KeyManager field so tests can substitute a
// stub without constructing a real key manager.
type sessionFactory func() *agent.Session

func newServer(socketPath string, factory sessionFactory) *server {
	return &server{socketPath: socketPath, manager: factory}
}

// listenAndServe binds the socket, removing any stale file left behind by
// a previous unclean shutdown, and blocks accepting connections until
// close is called.
func (s *server) listenAndServe() error {
	log := logging.For("Server")

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("socket", s.socketPath).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		go s.handle(conn)
	}
}

func (s *server) handle(conn net.Conn) {
	id := uuid.NewString()
	log := logging.For("Server").With().Str("connection", id).Logger()

	s.conns.Store(conn, struct{}{})
	n := atomic.AddInt32(&s.count, 1)
	log.Debug().Int32("active", n).Msg("connection opened")
	defer func() {
		conn.Close()
		s.conns.Delete(conn)
		n := atomic.AddInt32(&s.count, -1)
		log.Debug().Int32("active", n).Msg("connection closed")
	}()

	session := s.manager()
	for {
		body, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		reply := session.Handle(body)
		if err := wire.WriteFrame(conn, reply); err != nil {
			log.Warn().Err(err).Msg("write failed")
			return
		}
	}
}

// close stops accepting new connections and closes every open one.
func (s *server) close() error {
	s.mu.Lock()
	s.closing = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.conns.Range(func(k, _ any) bool {
		k.(net.Conn).Close()
		return true
	})
	return err
}
