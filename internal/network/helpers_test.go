package network

import (
	"net"
	"testing"
	"time"

	"github.com/amalg/tttserver/internal/player"
	"github.com/amalg/tttserver/internal/protocol"
)

// newTestSession returns a Session backed by one end of an in-memory pipe;
// the other end is handed back so the test can observe whatever the server
// side writes to this session's "client."
func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() { serverSide.Close(); clientSide.Close() })
	return NewSession(serverSide), clientSide
}

// loggedInSession is newTestSession plus an immediate login.
func loggedInSession(t *testing.T, registry *player.Registry, name string) (*Session, net.Conn) {
	t.Helper()
	s, conn := newTestSession(t)
	if err := s.Login(registry.Register(name)); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return s, conn
}

// recvPacket reads one packet from conn with a bounded wait, failing the
// test on timeout so a missing notification shows up as a failure rather
// than a hang.
func recvPacket(t *testing.T, conn net.Conn) (protocol.Header, []byte) {
	t.Helper()
	type result struct {
		h       protocol.Header
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		h, payload, err := protocol.ReadPacket(conn)
		done <- result{h, payload, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("recvPacket: %v", r.err)
		}
		return r.h, r.payload
	case <-time.After(2 * time.Second):
		t.Fatal("recvPacket: timed out waiting for a packet")
		return protocol.Header{}, nil
	}
}
