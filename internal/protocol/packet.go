// Package protocol implements the framed binary wire format shared by every
// client connection: a fixed 16-byte header followed by a raw payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the fixed size, in bytes, of every packet header.
const HeaderSize = 16

// MaxPayloadSize is the largest payload the u16 size field can address.
const MaxPayloadSize = 1<<16 - 1

// Type identifies the kind of packet carried in a frame.
type Type uint8

// Client → server request types.
const (
	TypeLogin Type = iota + 1
	TypeUsers
	TypeInvite
	TypeRevoke
	TypeDecline
	TypeAccept
	TypeMove
	TypeResign
)

// Server → client response/notification types.
const (
	TypeAck Type = iota + 64
	TypeNack
	TypeInvited
	TypeRevoked
	TypeAccepted
	TypeDeclined
	TypeMoved
	TypeResigned
	TypeEnded
)

func (t Type) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeUsers:
		return "USERS"
	case TypeInvite:
		return "INVITE"
	case TypeRevoke:
		return "REVOKE"
	case TypeDecline:
		return "DECLINE"
	case TypeAccept:
		return "ACCEPT"
	case TypeMove:
		return "MOVE"
	case TypeResign:
		return "RESIGN"
	case TypeAck:
		return "ACK"
	case TypeNack:
		return "NACK"
	case TypeInvited:
		return "INVITED"
	case TypeRevoked:
		return "REVOKED"
	case TypeAccepted:
		return "ACCEPTED"
	case TypeDeclined:
		return "DECLINED"
	case TypeMoved:
		return "MOVED"
	case TypeResigned:
		return "RESIGNED"
	case TypeEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Header is the fixed 16-byte record that precedes every payload.
//
// Wire layout (network byte order): type(1) id(1) role(1) reserved(1)
// size(2) timestamp_sec(4) timestamp_nsec(4) reserved(2).
type Header struct {
	Type   Type
	ID     uint8
	Role   uint8
	Size   uint16
	TSSec  uint32
	TSNsec uint32
}

// NewHeader builds a header stamped with the current wall-clock time.
func NewHeader(t Type, id, role uint8, size int) Header {
	now := time.Now()
	return Header{
		Type:   t,
		ID:     id,
		Role:   role,
		Size:   uint16(size),
		TSSec:  uint32(now.Unix()),
		TSNsec: uint32(now.Nanosecond()),
	}
}

// ErrEndOfStream signals a clean EOF encountered while reading the first
// byte of a header. It is not an error condition in itself — the service
// loop treats it as "the peer is done" and unwinds without logging a
// protocol failure.
var ErrEndOfStream = errors.New("protocol: end of stream")

// WritePacket writes header followed by payload (iff len(payload) > 0) to w.
// Partial writes are fully drained by io.Writer's contract plus an explicit
// short-write check; a write error or a short write is reported to the
// caller as an IOError-shaped error, which the service loop treats as
// remote closure.
func WritePacket(w io.Writer, h Header, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("protocol: payload of %d bytes exceeds max %d", len(payload), MaxPayloadSize)
	}
	h.Size = uint16(len(payload))

	var buf [HeaderSize]byte
	buf[0] = byte(h.Type)
	buf[1] = h.ID
	buf[2] = h.Role
	buf[3] = 0 // reserved
	binary.BigEndian.PutUint16(buf[4:6], h.Size)
	binary.BigEndian.PutUint32(buf[6:10], h.TSSec)
	binary.BigEndian.PutUint32(buf[10:14], h.TSNsec)
	// buf[14:16] reserved padding to reach 16 bytes.

	if err := writeFull(w, buf[:]); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if len(payload) > 0 {
		if err := writeFull(w, payload); err != nil {
			return fmt.Errorf("protocol: write payload: %w", err)
		}
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(b))
	}
	return nil
}

// ReadPacket reads exactly one frame from r: a 16-byte header and, if
// Size > 0, exactly Size bytes of payload. An EOF on the very first byte of
// the header is reported as ErrEndOfStream rather than a wrapped error, so
// callers can distinguish "peer is gone" from "peer sent garbage."
func ReadPacket(r io.Reader) (Header, []byte, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, nil, ErrEndOfStream
		}
		return Header{}, nil, fmt.Errorf("protocol: read header: %w", err)
	}
	if _, err := io.ReadFull(r, buf[1:]); err != nil {
		return Header{}, nil, fmt.Errorf("protocol: read header: %w", err)
	}

	h := Header{
		Type:   Type(buf[0]),
		ID:     buf[1],
		Role:   buf[2],
		Size:   binary.BigEndian.Uint16(buf[4:6]),
		TSSec:  binary.BigEndian.Uint32(buf[6:10]),
		TSNsec: binary.BigEndian.Uint32(buf[10:14]),
	}

	if h.Size == 0 {
		return h, nil, nil
	}

	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return h, payload, nil
}
