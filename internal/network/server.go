package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/amalg/tttserver/internal/game"
	"github.com/amalg/tttserver/internal/player"
	"github.com/amalg/tttserver/internal/protocol"
)

// Server is the acceptor: it owns the listening socket, spawns one service
// goroutine per accepted connection, and drives graceful shutdown.
type Server struct {
	addr     string
	players  *player.Registry
	clients  *Registry
	listener net.Listener
}

// NewServer creates a server that will listen on addr once Run is called.
func NewServer(addr string, players *player.Registry) *Server {
	return &Server{
		addr:    addr,
		players: players,
		clients: NewRegistry(),
	}
}

// Clients returns the server's client registry, mainly for tests and for
// the shutdown sequence in cmd/server.
func (s *Server) Clients() *Registry {
	return s.clients
}

// Run listens on s.addr and accepts connections until ctx is cancelled,
// at which point it closes the listener, waits for the service goroutines
// of already accepted connections to return, and returns. It does not itself
// shut those connections down — callers drive that via the client
// registry's ShutdownAll/WaitForEmpty per SPEC_FULL.md §6.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	slog.Info("server listening", "addr", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConnection(conn)
		}()
	}
	wg.Wait()
	return nil
}

// Addr returns the address the server is listening on, or nil if Run has
// not been called yet.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// serveConnection is the per-connection service loop: register, dispatch
// request packets until EOF or a protocol error, then clean up.
func (s *Server) serveConnection(conn net.Conn) {
	defer conn.Close()

	session, err := s.clients.Register(conn)
	if err != nil {
		slog.Warn("rejecting connection: registry full", "remote", conn.RemoteAddr())
		return
	}
	defer s.clients.Unregister(session)

	for {
		h, payload, err := protocol.ReadPacket(conn)
		if err != nil {
			if !errors.Is(err, protocol.ErrEndOfStream) {
				slog.Debug("connection read error", "remote", conn.RemoteAddr(), "error", err)
			}
			break
		}
		s.dispatch(session, h, payload)
	}

	if session.IsLoggedIn() {
		_ = session.Logout(s.players)
	}
}

// dispatch handles one request packet, sending exactly one ACK/NACK back to
// the initiator (plus whatever asynchronous notifications the underlying
// operation produces).
func (s *Server) dispatch(session *Session, h protocol.Header, payload []byte) {
	if h.Type != protocol.TypeLogin && !session.IsLoggedIn() {
		_ = session.SendNack()
		return
	}

	switch h.Type {
	case protocol.TypeLogin:
		s.handleLogin(session, payload)
	case protocol.TypeUsers:
		s.handleUsers(session)
	case protocol.TypeInvite:
		s.handleInvite(session, h, payload)
	case protocol.TypeRevoke:
		s.handleSimple(session, int(h.ID), func(id int) error {
			return RevokeInvitation(session, id)
		})
	case protocol.TypeDecline:
		s.handleSimple(session, int(h.ID), func(id int) error {
			return DeclineInvitation(session, id)
		})
	case protocol.TypeAccept:
		s.handleAccept(session, int(h.ID))
	case protocol.TypeMove:
		s.handleSimple(session, int(h.ID), func(id int) error {
			return MakeMove(s.players, session, id, string(payload))
		})
	case protocol.TypeResign:
		s.handleSimple(session, int(h.ID), func(id int) error {
			return ResignGame(s.players, session, id)
		})
	default:
		slog.Warn("unknown request type", "type", h.Type)
		_ = session.SendNack()
	}
}

func (s *Server) handleLogin(session *Session, payload []byte) {
	name := string(payload)
	if name == "" {
		_ = session.SendNack()
		return
	}
	if _, err := s.clients.TryLogin(session, s.players, name); err != nil {
		_ = session.SendNack()
		return
	}
	_ = session.SendAck(0, 0, nil)
}

func (s *Server) handleUsers(session *Session) {
	players := s.clients.AllPlayers()
	var b strings.Builder
	for _, p := range players {
		fmt.Fprintf(&b, "%s\t%d\n", p.Name(), p.Rating())
	}
	_ = session.SendAck(0, 0, []byte(b.String()))
}

func (s *Server) handleInvite(session *Session, h protocol.Header, payload []byte) {
	targetName := string(payload)
	target, ok := s.clients.Lookup(targetName)
	if !ok {
		_ = session.SendNack()
		return
	}
	targetRole := game.Role(h.Role)
	if !validRole(targetRole) {
		_ = session.SendNack()
		return
	}
	sourceRole := targetRole.Opponent()

	id, err := MakeInvitation(session, target, sourceRole, targetRole)
	if err != nil {
		slog.Debug("invite failed", "error", err)
		_ = session.SendNack()
		return
	}
	_ = session.SendAck(uint8(id), 0, nil)
}

func (s *Server) handleAccept(session *Session, id int) {
	initial, err := AcceptInvitation(session, id)
	if err != nil {
		slog.Debug("accept failed", "error", err)
		_ = session.SendNack()
		return
	}
	_ = session.SendAck(uint8(id), 0, []byte(initial))
}

// handleSimple runs an operation that either succeeds (ACK, no payload) or
// fails (NACK) — the shape shared by revoke, decline, move, and resign.
func (s *Server) handleSimple(session *Session, id int, op func(id int) error) {
	if err := op(id); err != nil {
		slog.Debug("operation failed", "id", id, "error", err)
		_ = session.SendNack()
		return
	}
	_ = session.SendAck(uint8(id), 0, nil)
}
