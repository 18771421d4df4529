// Package protocol defines the wire format shared by the vsock-shell
// server and client: a fixed 12-byte header followed by a payload of at
// most MaxPayload bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies a valid record header. It is transmitted little-endian.
const Magic uint32 = 0xCAFEBABE

// HeaderSize is the on-wire size of a record header: magic, type, length.
const HeaderSize = 12

// MaxPayload is the largest payload a single record may carry.
const MaxPayload = 4096

// Type enumerates the record kinds exchanged over the wire.
type Type uint32

const (
	TypeOpenBash Type = iota
	TypeOpenCmd
	TypeWindowSize
	TypeClientData
	TypePTYData
	TypeClientEnd
	TypeFileUploadStart
	TypeFileDownloadStart
	TypeFileReadySend
	TypeFileReadyRecv
	TypeFileDataBegin
	TypeFileData
	TypeFileDataEnd
	TypeFileDataEndAck
)

func (t Type) String() string {
	switch t {
	case TypeOpenBash:
		return "OPEN_BASH"
	case TypeOpenCmd:
		return "OPEN_CMD"
	case TypeWindowSize:
		return "WINDOW_SIZE"
	case TypeClientData:
		return "CLIENT_DATA"
	case TypePTYData:
		return "PTY_DATA"
	case TypeClientEnd:
		return "CLIENT_END"
	case TypeFileUploadStart:
		return "FILE_UPLOAD_START"
	case TypeFileDownloadStart:
		return "FILE_DOWNLOAD_START"
	case TypeFileReadySend:
		return "FILE_READY_SEND"
	case TypeFileReadyRecv:
		return "FILE_READY_RECV"
	case TypeFileDataBegin:
		return "FILE_DATA_BEGIN"
	case TypeFileData:
		return "FILE_DATA"
	case TypeFileDataEnd:
		return "FILE_DATA_END"
	case TypeFileDataEndAck:
		return "FILE_DATA_END_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// ErrPayloadTooLarge is returned by Encode when a payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("protocol: payload exceeds 4096 bytes")

// Record is one self-delimited protocol message.
type Record struct {
	Type    Type
	Payload []byte
}

// Encode appends the wire representation of r to dst and returns the result.
func (r Record) Encode(dst []byte) ([]byte, error) {
	if len(r.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(r.Type))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(r.Payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Payload...)
	return dst, nil
}

// Header is a decoded, unvalidated record header.
type Header struct {
	Magic  uint32
	Type   Type
	Length uint32
}

// DecodeHeader reads a header from the first HeaderSize bytes of buf.
// The caller must ensure len(buf) >= HeaderSize.
func DecodeHeader(buf []byte) Header {
	return Header{
		Magic:  binary.LittleEndian.Uint32(buf[0:4]),
		Type:   Type(binary.LittleEndian.Uint32(buf[4:8])),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// WindowSize is the payload of a WINDOW_SIZE record.
type WindowSize struct {
	Rows, Cols, XPixel, YPixel uint16
}

// WindowSizePayloadLen is the fixed wire length of a WindowSize payload.
const WindowSizePayloadLen = 8

// Encode returns the 8-byte wire payload for a WINDOW_SIZE record.
func (w WindowSize) Encode() []byte {
	buf := make([]byte, WindowSizePayloadLen)
	binary.LittleEndian.PutUint16(buf[0:2], w.Rows)
	binary.LittleEndian.PutUint16(buf[2:4], w.Cols)
	binary.LittleEndian.PutUint16(buf[4:6], w.XPixel)
	binary.LittleEndian.PutUint16(buf[6:8], w.YPixel)
	return buf
}

// ErrBadWindowSize is returned when a WINDOW_SIZE payload has the wrong length.
var ErrBadWindowSize = errors.New("protocol: window size payload must be 8 bytes")

// DecodeWindowSize parses an 8-byte WINDOW_SIZE payload.
func DecodeWindowSize(payload []byte) (WindowSize, error) {
	if len(payload) != WindowSizePayloadLen {
		return WindowSize{}, ErrBadWindowSize
	}
	return WindowSize{
		Rows:   binary.LittleEndian.Uint16(payload[0:2]),
		Cols:   binary.LittleEndian.Uint16(payload[2:4]),
		XPixel: binary.LittleEndian.Uint16(payload[4:6]),
		YPixel: binary.LittleEndian.Uint16(payload[6:8]),
	}, nil
}
