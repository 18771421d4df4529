package protocol

import (
	"bytes"
	"testing"
)

func samplePayloads() [][]byte {
	return [][]byte{
		nil,
		[]byte("hi\n"),
		bytes.Repeat([]byte{0x42}, MaxPayload),
	}
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	for _, p := range samplePayloads() {
		r := Record{Type: TypePTYData, Payload: p}
		wire, err := r.Encode(nil)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(wire) != HeaderSize+len(p) {
			t.Fatalf("wire length = %d, want %d", len(wire), HeaderSize+len(p))
		}
		hdr := DecodeHeader(wire[:HeaderSize])
		if hdr.Magic != Magic {
			t.Errorf("magic = %#x, want %#x", hdr.Magic, Magic)
		}
		if hdr.Type != TypePTYData {
			t.Errorf("type = %v, want %v", hdr.Type, TypePTYData)
		}
		if int(hdr.Length) != len(p) {
			t.Errorf("length = %d, want %d", hdr.Length, len(p))
		}
		if !bytes.Equal(wire[HeaderSize:], p) {
			t.Errorf("payload mismatch")
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	r := Record{Type: TypeFileData, Payload: make([]byte, MaxPayload+1)}
	if _, err := r.Encode(nil); err != ErrPayloadTooLarge {
		t.Fatalf("Encode err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestWindowSizeRoundTrip(t *testing.T) {
	w := WindowSize{Rows: 24, Cols: 80, XPixel: 640, YPixel: 480}
	got, err := DecodeWindowSize(w.Encode())
	if err != nil {
		t.Fatalf("DecodeWindowSize: %v", err)
	}
	if got != w {
		t.Errorf("got %+v, want %+v", got, w)
	}
}

func TestDecodeWindowSizeRejectsBadLength(t *testing.T) {
	if _, err := DecodeWindowSize([]byte{1, 2, 3}); err != ErrBadWindowSize {
		t.Fatalf("err = %v, want ErrBadWindowSize", err)
	}
}

func TestTypeStringUnknown(t *testing.T) {
	if got := Type(999).String(); got != "UNKNOWN(999)" {
		t.Errorf("String() = %q", got)
	}
}
