package network

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/amalg/tttserver/internal/game"
	"github.com/amalg/tttserver/internal/player"
	"github.com/amalg/tttserver/internal/protocol"
)

// State is an Invitation's position in its OPEN → ACCEPTED → CLOSED
// lifecycle. CLOSED is terminal.
type State uint8

const (
	StateOpen State = iota
	StateAccepted
	StateClosed
)

// Invitation links exactly two distinct sessions, each with a role. It is
// stored at a stable (but independently numbered) index in both the
// source's and the target's invitation lists for as long as it is live.
//
// sourceIndex and targetIndex are written once, under both sessions' locks,
// at creation time (see MakeInvitation) and never change afterward — the
// Invitation only ever moves between being present and absent from a given
// slot, never to a different slot — so they are safe to read without
// further synchronization once a caller has obtained the *Invitation
// pointer through a session's own lock.
type Invitation struct {
	Source, Target         *Session
	SourceRole, TargetRole game.Role
	sourceIndex            int
	targetIndex            int

	mu    sync.Mutex
	state State
	game  game.Game
}

// State returns the invitation's current state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the invitation's game, or nil if it has none yet.
func (inv *Invitation) Game() game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// roleOf returns the role s plays in inv, assuming s is a participant.
func roleOf(inv *Invitation, s *Session) game.Role {
	if s == inv.Source {
		return inv.SourceRole
	}
	return inv.TargetRole
}

// peerOf returns the other participant and that participant's local index
// for inv, assuming s is a participant.
func peerOf(inv *Invitation, s *Session) (*Session, int) {
	if s == inv.Source {
		return inv.Target, inv.targetIndex
	}
	return inv.Source, inv.sourceIndex
}

// MakeInvitation creates an OPEN invitation from source to target and
// notifies target. It fails with a single error (which the caller turns
// into a NACK) if the participants are invalid, either is logged out, the
// roles are invalid, or either session's invitation list is full.
func MakeInvitation(source, target *Session, sourceRole, targetRole game.Role) (int, error) {
	if source == target {
		return -1, fmt.Errorf("network: cannot invite yourself")
	}
	if !validRole(sourceRole) || !validRole(targetRole) || sourceRole == targetRole {
		return -1, fmt.Errorf("network: invalid role pair (%v, %v)", sourceRole, targetRole)
	}
	if !source.IsLoggedIn() || !target.IsLoggedIn() {
		return -1, fmt.Errorf("network: both participants must be logged in")
	}

	inv := &Invitation{
		Source:     source,
		Target:     target,
		SourceRole: sourceRole,
		TargetRole: targetRole,
		state:      StateOpen,
	}

	unlock := lockSessions(source, target)
	sourceIdx, err := source.addInvitationLocked(inv)
	if err != nil {
		unlock()
		return -1, fmt.Errorf("network: inviter's invitation list: %w", err)
	}
	targetIdx, err := target.addInvitationLocked(inv)
	if err != nil {
		source.removeInvitationLocked(inv)
		unlock()
		return -1, fmt.Errorf("network: invitee's invitation list: %w", err)
	}
	inv.sourceIndex = sourceIdx
	inv.targetIndex = targetIdx
	unlock()

	name := ""
	if p := source.Player(); p != nil {
		name = p.Name()
	}
	h := protocol.NewHeader(protocol.TypeInvited, uint8(targetIdx), uint8(targetRole), len(name))
	if err := target.Send(h, []byte(name)); err != nil {
		slog.Warn("failed to notify invitee", "error", err)
	}

	return sourceIdx, nil
}

func validRole(r game.Role) bool {
	return r == game.RoleFirst || r == game.RoleSecond
}

// RevokeInvitation closes an OPEN invitation on behalf of its source and
// notifies the target.
func RevokeInvitation(source *Session, id int) error {
	inv, ok := source.InvitationAt(id)
	if !ok {
		return fmt.Errorf("network: no invitation at id %d", id)
	}
	if inv.Source != source {
		return fmt.Errorf("network: caller is not the inviter")
	}

	inv.mu.Lock()
	if inv.state != StateOpen {
		inv.mu.Unlock()
		return fmt.Errorf("network: invitation is not open")
	}
	inv.state = StateClosed
	inv.mu.Unlock()

	source.RemoveInvitation(inv)
	inv.Target.RemoveInvitation(inv)

	h := protocol.NewHeader(protocol.TypeRevoked, uint8(inv.targetIndex), 0, 0)
	if err := inv.Target.Send(h, nil); err != nil {
		slog.Warn("failed to notify revoked invitee", "error", err)
	}
	return nil
}

// DeclineInvitation closes an OPEN invitation on behalf of its target and
// notifies the source.
func DeclineInvitation(target *Session, id int) error {
	inv, ok := target.InvitationAt(id)
	if !ok {
		return fmt.Errorf("network: no invitation at id %d", id)
	}
	if inv.Target != target {
		return fmt.Errorf("network: caller is not the invitee")
	}

	inv.mu.Lock()
	if inv.state != StateOpen {
		inv.mu.Unlock()
		return fmt.Errorf("network: invitation is not open")
	}
	inv.state = StateClosed
	inv.mu.Unlock()

	inv.Source.RemoveInvitation(inv)
	target.RemoveInvitation(inv)

	h := protocol.NewHeader(protocol.TypeDeclined, uint8(inv.sourceIndex), 0, 0)
	if err := inv.Source.Send(h, nil); err != nil {
		slog.Warn("failed to notify declined inviter", "error", err)
	}
	return nil
}

// AcceptInvitation transitions an OPEN invitation to ACCEPTED, creates its
// game, and notifies the source. It returns the rendered initial state for
// inclusion in the caller's own ACK iff the target moves first.
func AcceptInvitation(target *Session, id int) (string, error) {
	inv, ok := target.InvitationAt(id)
	if !ok {
		return "", fmt.Errorf("network: no invitation at id %d", id)
	}
	if inv.Target != target {
		return "", fmt.Errorf("network: caller is not the invitee")
	}

	inv.mu.Lock()
	if inv.state != StateOpen {
		inv.mu.Unlock()
		return "", fmt.Errorf("network: invitation is not open")
	}
	g := game.NewTicTacToe()
	inv.game = g
	inv.state = StateAccepted
	inv.mu.Unlock()

	initial := g.Render()

	sourcePayload := ""
	if inv.SourceRole == game.RoleFirst {
		sourcePayload = initial
	}
	h := protocol.NewHeader(protocol.TypeAccepted, uint8(inv.sourceIndex), 0, len(sourcePayload))
	if err := inv.Source.Send(h, []byte(sourcePayload)); err != nil {
		slog.Warn("failed to notify accepted inviter", "error", err)
	}

	if inv.TargetRole == game.RoleFirst {
		return initial, nil
	}
	return "", nil
}

// MakeMove parses and applies moveStr on caller's behalf against an
// ACCEPTED invitation's game, notifies the opponent, and — if the move
// ends the game — notifies both sides and posts the rating update.
func MakeMove(registry *player.Registry, caller *Session, id int, moveStr string) error {
	inv, ok := caller.InvitationAt(id)
	if !ok {
		return fmt.Errorf("network: no invitation at id %d", id)
	}
	if inv.Source != caller && inv.Target != caller {
		return fmt.Errorf("network: caller is not a participant")
	}

	inv.mu.Lock()
	if inv.state != StateAccepted {
		inv.mu.Unlock()
		return fmt.Errorf("network: invitation has no game in progress")
	}
	g := inv.game
	inv.mu.Unlock()

	role := roleOf(inv, caller)
	move, err := g.ParseMove(role, moveStr)
	if err != nil {
		return fmt.Errorf("network: invalid move: %w", err)
	}
	if err := g.ApplyMove(role, move); err != nil {
		return fmt.Errorf("network: illegal move: %w", err)
	}

	rendered := g.Render()
	opponent, opponentIdx := peerOf(inv, caller)
	h := protocol.NewHeader(protocol.TypeMoved, uint8(opponentIdx), 0, len(rendered))
	if err := opponent.Send(h, []byte(rendered)); err != nil {
		slog.Warn("failed to notify opponent of move", "error", err)
	}

	if g.IsOver() {
		endGame(registry, inv, g.Winner())
	}
	return nil
}

// ResignGame resigns the game on caller's behalf, declaring the opponent
// winner, notifying both sides, and posting the rating update.
func ResignGame(registry *player.Registry, caller *Session, id int) error {
	inv, ok := caller.InvitationAt(id)
	if !ok {
		return fmt.Errorf("network: no invitation at id %d", id)
	}
	if inv.Source != caller && inv.Target != caller {
		return fmt.Errorf("network: caller is not a participant")
	}

	inv.mu.Lock()
	if inv.state != StateAccepted {
		inv.mu.Unlock()
		return fmt.Errorf("network: invitation has no game in progress")
	}
	g := inv.game
	inv.mu.Unlock()

	role := roleOf(inv, caller)
	if err := g.Resign(role); err != nil {
		return fmt.Errorf("network: resign: %w", err)
	}

	opponent, opponentIdx := peerOf(inv, caller)
	h := protocol.NewHeader(protocol.TypeResigned, uint8(opponentIdx), 0, 0)
	if err := opponent.Send(h, nil); err != nil {
		slog.Warn("failed to notify opponent of resignation", "error", err)
	}

	endGame(registry, inv, g.Winner())
	return nil
}

// endGame closes inv, removes it from both sessions' lists, sends ENDED to
// both participants, and posts the rating update. It acts only once per
// invitation, after the underlying game has already decided winner; a
// later call for an already closed invitation does nothing.
func endGame(registry *player.Registry, inv *Invitation, winner game.Role) {
	inv.mu.Lock()
	if inv.state == StateClosed {
		inv.mu.Unlock()
		return
	}
	inv.state = StateClosed
	inv.mu.Unlock()

	inv.Source.RemoveInvitation(inv)
	inv.Target.RemoveInvitation(inv)

	sourceH := protocol.NewHeader(protocol.TypeEnded, uint8(inv.sourceIndex), uint8(winner), 0)
	if err := inv.Source.Send(sourceH, nil); err != nil {
		slog.Warn("failed to notify source of game end", "error", err)
	}
	targetH := protocol.NewHeader(protocol.TypeEnded, uint8(inv.targetIndex), uint8(winner), 0)
	if err := inv.Target.Send(targetH, nil); err != nil {
		slog.Warn("failed to notify target of game end", "error", err)
	}

	var winnerPlayer *player.Player
	switch winner {
	case inv.SourceRole:
		winnerPlayer = inv.Source.Player()
	case inv.TargetRole:
		winnerPlayer = inv.Target.Player()
	}
	registry.PostResult(inv.Source.Player(), inv.Target.Player(), winnerPlayer)
}
