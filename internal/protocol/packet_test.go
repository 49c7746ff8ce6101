package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeader(TypeInvited, 3, 2, 0)
	payload := []byte("alice")

	if err := WritePacket(&buf, h, payload); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	gotH, gotPayload, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if gotH.Type != TypeInvited || gotH.ID != 3 || gotH.Role != 2 {
		t.Errorf("header mismatch: got %+v", gotH)
	}
	if string(gotPayload) != "alice" {
		t.Errorf("payload mismatch: got %q", gotPayload)
	}
}

func TestWritePacketZeroPayload(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeader(TypeNack, 0, 0, 0)
	if err := WritePacket(&buf, h, nil); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expected exactly %d bytes on the wire, got %d", HeaderSize, buf.Len())
	}

	_, payload, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("expected no payload, got %d bytes", len(payload))
	}
}

func TestReadPacketEndOfStream(t *testing.T) {
	var buf bytes.Buffer
	_, _, err := ReadPacket(&buf)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream on empty reader, got %v", err)
	}
}

func TestReadPacketTruncatedHeaderIsProtocolError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3}) // fewer than HeaderSize bytes
	_, _, err := ReadPacket(buf)
	if err == nil || errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected a protocol error for a truncated header, got %v", err)
	}
}

func TestReadPacketTruncatedPayloadIsError(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeader(TypeMove, 1, 0, 0)
	if err := WritePacket(&buf, h, []byte("12345")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	truncated := bytes.NewBuffer(buf.Bytes()[:HeaderSize+2])
	_, _, err := ReadPacket(truncated)
	if err == nil {
		t.Fatal("expected an error reading a truncated payload")
	}
}

func TestTypeStringKnownAndUnknown(t *testing.T) {
	if TypeMove.String() != "MOVE" {
		t.Errorf("expected MOVE, got %s", TypeMove.String())
	}
	if got := Type(200).String(); got == "" {
		t.Errorf("expected a non-empty fallback string for an unknown type, got %q", got)
	}
}
