// Package frame implements the RSocket frame codec façade: pure
// encode/decode functions over byte buffers, one file per frame type,
// plus a Framer that reads/writes the 24-bit length-prefixed stream of
// frames used by framed transports (TCP, websocket).
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

var order = binary.BigEndian

const (
	// StreamId is a 31-bit integer; the top bit of the 4-byte field is reserved.
	streamIdMask = 0x7FFFFFFF
	// frame length is a 24-bit integer
	lengthMask = 0x00FFFFFF
	// Type occupies the high 6 bits of the 16-bit type/flags word.
	typeShift = 10
	typeMask  = 0x3F
	// Flags occupies the low 10 bits.
	flagsMask = 0x03FF

	lengthFieldSize = 3
	headerSize      = 6 // stream id (4) + type/flags (2), not including the length prefix
)

// StreamId uniquely identifies a stream within a connection. Stream id 0
// is reserved for connection-level frames.
type StreamId uint32

func (id StreamId) valid() error {
	if uint32(id) > streamIdMask {
		return protoError("invalid stream id: %d", id)
	}
	return nil
}

// Type is a 6-bit integer identifying the kind of frame.
type Type uint8

const (
	TypeReserved Type = iota
	TypeSetup
	TypeLease
	TypeKeepalive
	TypeRequestResponse
	TypeRequestFNF
	TypeRequestStream
	TypeRequestChannel
	TypeRequestN
	TypeCancel
	TypePayload
	TypeError
	TypeMetadataPush
	TypeResume
	TypeResumeOK
	TypeExt Type = 0x3F
)

func (t Type) String() string {
	switch t {
	case TypeSetup:
		return "SETUP"
	case TypeLease:
		return "LEASE"
	case TypeKeepalive:
		return "KEEPALIVE"
	case TypeRequestResponse:
		return "REQUEST_RESPONSE"
	case TypeRequestFNF:
		return "REQUEST_FNF"
	case TypeRequestStream:
		return "REQUEST_STREAM"
	case TypeRequestChannel:
		return "REQUEST_CHANNEL"
	case TypeRequestN:
		return "REQUEST_N"
	case TypeCancel:
		return "CANCEL"
	case TypePayload:
		return "PAYLOAD"
	case TypeError:
		return "ERROR"
	case TypeMetadataPush:
		return "METADATA_PUSH"
	case TypeResume:
		return "RESUME"
	case TypeResumeOK:
		return "RESUME_OK"
	case TypeExt:
		return "EXT"
	default:
		return "UNKNOWN"
	}
}

// Flags is the 10-bit flags field. Bits 9 and 8 (Ignore, Metadata) are
// shared across frame types; the low 8 bits are frame-specific.
type Flags uint16

const (
	FlagIgnore   Flags = 1 << 9
	FlagMetadata Flags = 1 << 8

	// PAYLOAD / REQUEST_CHANNEL
	FlagFollows  Flags = 1 << 7
	FlagComplete Flags = 1 << 6
	FlagNext     Flags = 1 << 5

	// KEEPALIVE
	FlagRespond Flags = 1 << 7

	// LEASE is metadata-only via FlagMetadata; no frame-specific bits.

	// RESUME / SETUP
	FlagResumeEnable Flags = 1 << 7
)

func (f Flags) Has(g Flags) bool { return f&g != 0 }
func (f *Flags) Set(g Flags)     { *f |= g }

const maxBodySize = 1<<24 - 1

// Frame is implemented by every concrete frame type.
type Frame interface {
	StreamId() StreamId
	Type() Type
	Flags() Flags
	readFrom(io.Reader, int) error
	writeTo(io.Writer) error
}

// common is the shared header embedded in every concrete frame type,
// mirroring the one-struct-per-header layout of a classic frame codec:
// each frame type embeds common and adds its own body fields.
type common struct {
	streamId StreamId
	ftype    Type
	flags    Flags
}

func (f *common) StreamId() StreamId { return f.streamId }
func (f *common) Type() Type         { return f.ftype }
func (f *common) Flags() Flags       { return f.flags }

func (f *common) pack(ftype Type, streamId StreamId, flags Flags) error {
	if err := streamId.valid(); err != nil {
		return err
	}
	f.ftype = ftype
	f.streamId = streamId
	f.flags = flags & flagsMask
	return nil
}

// readHeader decodes the stream id / type / flags word; it does not
// touch the length prefix, which the Framer strips off first.
func readHeader(r io.Reader) (streamId StreamId, ftype Type, flags Flags, err error) {
	var b [headerSize]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return
	}
	sid := order.Uint32(b[0:4]) & streamIdMask
	word := order.Uint16(b[4:6])
	return StreamId(sid), Type((word >> typeShift) & typeMask), Flags(word & flagsMask), nil
}

func writeHeader(w io.Writer, streamId StreamId, ftype Type, flags Flags) error {
	var b [headerSize]byte
	order.PutUint32(b[0:4], uint32(streamId)&streamIdMask)
	word := uint16(ftype&typeMask)<<typeShift | uint16(flags&flagsMask)
	order.PutUint16(b[4:6], word)
	_, err := w.Write(b[:])
	return err
}

func isValidLength(n int) bool {
	return n >= 0 && n <= lengthMask
}

// readLen24 reads a 24-bit big-endian length prefix.
func readLen24(r io.Reader) (int, error) {
	var b [lengthFieldSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2]), nil
}

func writeLen24(w io.Writer, n int) error {
	if !isValidLength(n) {
		return protoError("invalid 24-bit length: %d", n)
	}
	b := [lengthFieldSize]byte{byte(n >> 16), byte(n >> 8), byte(n)}
	_, err := w.Write(b[:])
	return err
}

func (f *common) String() string {
	return fmt.Sprintf("FRAME[type=%s stream=%d flags=%#x]", f.ftype, f.streamId, f.flags)
}
