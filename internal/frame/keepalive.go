package frame

import "io"

const keepalivePositionLen = 8

// Keepalive is a connection-level liveness probe. FlagRespond means the
// receiver must echo one back; the echo has FlagRespond unset.
type Keepalive struct {
	common
	lastReceivedPosition uint64
	data                 []byte
}

func (f *Keepalive) LastReceivedPosition() uint64 { return f.lastReceivedPosition }
func (f *Keepalive) Data() []byte                 { return f.data }
func (f *Keepalive) Respond() bool                { return f.flags.Has(FlagRespond) }

func (f *Keepalive) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("KEEPALIVE stream id must be zero, got %d", f.streamId)
	}
	if bodyLen < keepalivePositionLen {
		return frameSizeError(bodyLen, "KEEPALIVE")
	}
	var b [keepalivePositionLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.lastReceivedPosition = order.Uint64(b[:])
	data := make([]byte, bodyLen-keepalivePositionLen)
	if len(data) > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
	}
	f.data = data
	return nil
}

func (f *Keepalive) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+keepalivePositionLen+len(f.data)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeKeepalive, f.flags); err != nil {
		return err
	}
	var b [keepalivePositionLen]byte
	order.PutUint64(b[:], f.lastReceivedPosition)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	if len(f.data) > 0 {
		_, err := w.Write(f.data)
		return err
	}
	return nil
}

func PackKeepalive(lastReceivedPosition uint64, data []byte, respond bool) (*Keepalive, error) {
	f := &Keepalive{lastReceivedPosition: lastReceivedPosition, data: data}
	var flags Flags
	if respond {
		flags.Set(FlagRespond)
	}
	if err := f.common.pack(TypeKeepalive, 0, flags); err != nil {
		return nil, err
	}
	return f, nil
}
