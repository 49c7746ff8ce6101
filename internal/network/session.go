package network

import (
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/amalg/tttserver/internal/player"
	"github.com/amalg/tttserver/internal/protocol"
)

// maxInvitationsPerSession bounds the per-session invitation list. The
// source behavior this server is modeled on never specifies a hard limit
// beyond the overall connection cap; SPEC_FULL.md §3 fixes one explicitly.
const maxInvitationsPerSession = 256

// invitationGrowBlock is how many slots the invitation slice grows by when
// it runs out of room, matching the "grow in blocks" contract in
// SPEC_FULL.md §4.2.
const invitationGrowBlock = 10

// Session is the server-side state associated with one live client
// connection: the connection handle, the logged-in player (if any), the
// sparse list of invitations in which this session is a participant, and a
// dedicated send lock so writes on this connection are never interleaved.
type Session struct {
	conn net.Conn

	mu          sync.Mutex
	player      *player.Player
	invitations []*Invitation // sparse: nil marks a free slot

	sendMu sync.Mutex
}

// NewSession wraps an accepted connection in a fresh, logged-out session.
func NewSession(conn net.Conn) *Session {
	return &Session{conn: conn}
}

// Conn returns the underlying connection, for use by the registry's
// shutdown path and the service loop's read path.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Player returns the logged-in player, or nil if not logged in.
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// IsLoggedIn reports whether the session has an associated player.
func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil
}

// Login associates p with this session. It fails if the session is already
// logged in; the caller (the service loop, via the client registry) is
// responsible for rejecting a name already live elsewhere before calling
// this.
func (s *Session) Login(p *player.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return fmt.Errorf("network: session already logged in as %s", s.player.Name())
	}
	s.player = p
	return nil
}

// logoutSnapshot captures everything Logout needs to cascade notifications
// without holding the session lock across those sends.
type logoutSnapshot struct {
	indices []int
	invites []*Invitation
}

// Logout drops the session's player reference after cascading a
// revoke/decline/resign through every invitation the session still holds,
// exactly as if the client had issued each call explicitly. It fails if the
// session is not logged in.
func (s *Session) Logout(registry *player.Registry) error {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		return fmt.Errorf("network: session not logged in")
	}
	snap := logoutSnapshot{}
	for idx, inv := range s.invitations {
		if inv != nil {
			snap.indices = append(snap.indices, idx)
			snap.invites = append(snap.invites, inv)
		}
	}
	s.mu.Unlock()

	for i, inv := range snap.invites {
		idx := snap.indices[i]
		switch inv.State() {
		case StateOpen:
			if inv.Source == s {
				_ = RevokeInvitation(s, idx)
			} else {
				_ = DeclineInvitation(s, idx)
			}
		case StateAccepted:
			_ = ResignGame(registry, s, idx)
		case StateClosed:
			// Already closed by a concurrent operation; nothing to do.
		}
	}

	s.mu.Lock()
	s.player = nil
	s.mu.Unlock()
	return nil
}

// AddInvitation places inv at the lowest free index in this session's
// invitation list, growing the list if necessary, and returns that index.
// It fails once the per-session cap is reached.
func (s *Session) AddInvitation(inv *Invitation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addInvitationLocked(inv)
}

// addInvitationLocked is AddInvitation's core, assuming s.mu is already
// held. Exposed so callers that must insert into two sessions under both
// locks held at once (MakeInvitation) don't re-enter s.mu.
func (s *Session) addInvitationLocked(inv *Invitation) (int, error) {
	for i, existing := range s.invitations {
		if existing == nil {
			s.invitations[i] = inv
			return i, nil
		}
	}

	if len(s.invitations) >= maxInvitationsPerSession {
		return -1, fmt.Errorf("network: session invitation list full (cap %d)", maxInvitationsPerSession)
	}

	grow := invitationGrowBlock
	if len(s.invitations)+grow > maxInvitationsPerSession {
		grow = maxInvitationsPerSession - len(s.invitations)
	}
	idx := len(s.invitations)
	s.invitations = append(s.invitations, make([]*Invitation, grow)...)
	s.invitations[idx] = inv
	return idx, nil
}

// RemoveInvitation nils the slot holding inv and returns the index it
// occupied, or -1 if inv was not found in this session's list.
func (s *Session) RemoveInvitation(inv *Invitation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeInvitationLocked(inv)
}

// removeInvitationLocked is RemoveInvitation's core, assuming s.mu is
// already held.
func (s *Session) removeInvitationLocked(inv *Invitation) int {
	for i, existing := range s.invitations {
		if existing == inv {
			s.invitations[i] = nil
			return i
		}
	}
	return -1
}

// InvitationAt returns the invitation at local index id, or false if the
// index is out of range or the slot is empty.
func (s *Session) InvitationAt(id int) (*Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.invitations) {
		return nil, false
	}
	inv := s.invitations[id]
	return inv, inv != nil
}

// Send writes a packet to this connection. Per-connection sends are
// serialized through sendMu so two concurrent notifications targeting the
// same session can never interleave on the wire, while sends to different
// sessions proceed fully in parallel (the strictly-more-concurrent
// refinement SPEC_FULL.md §9 admits in place of one process-wide lock).
func (s *Session) Send(h protocol.Header, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.WritePacket(s.conn, h, payload)
}

// SendAck sends an ACK with the given id/role/payload.
func (s *Session) SendAck(id, role uint8, payload []byte) error {
	return s.Send(protocol.NewHeader(protocol.TypeAck, id, role, len(payload)), payload)
}

// SendNack sends a bare NACK.
func (s *Session) SendNack() error {
	return s.Send(protocol.NewHeader(protocol.TypeNack, 0, 0, 0), nil)
}

// identity returns a stable, comparable value for lock-ordering purposes.
func identity(s *Session) uintptr {
	return uintptr(unsafe.Pointer(s))
}

// lockSessions locks a and b in a fixed global order (ascending identity)
// regardless of call order, returning a function that unlocks both. This is
// the deadlock-avoidance discipline SPEC_FULL.md §4.2/§5 requires whenever
// two sessions must be mutated together.
func lockSessions(a, b *Session) (unlock func()) {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if identity(a) > identity(b) {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
