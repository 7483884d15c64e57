package frame

import "io"

const requestNBodyLen = 4

// RequestN carries additional demand for an already-open REQUEST_STREAM
// or REQUEST_CHANNEL.
type RequestN struct {
	common
	n uint32
}

// N returns the number of additional payloads the peer is now willing to
// accept.
func (f *RequestN) N() uint32 { return f.n }

func (f *RequestN) readFrom(r io.Reader, bodyLen int) error {
	if bodyLen != requestNBodyLen {
		return frameSizeError(bodyLen, "REQUEST_N")
	}
	if f.streamId == 0 {
		return protoError("REQUEST_N stream id must not be zero")
	}
	var b [requestNBodyLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.n = order.Uint32(b[:])
	return nil
}

func (f *RequestN) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+requestNBodyLen); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeRequestN, f.flags); err != nil {
		return err
	}
	var b [requestNBodyLen]byte
	order.PutUint32(b[:], f.n)
	_, err := w.Write(b[:])
	return err
}

// PackRequestN encodes a REQUEST_N frame. n must be > 0 and <= math.MaxUint32;
// a request for Long.MAX_VALUE-equivalent saturating demand is represented
// by the caller passing math.MaxInt32 per the RSocket saturating-demand rule.
func PackRequestN(streamId StreamId, n uint32) (*RequestN, error) {
	f := &RequestN{n: n}
	if err := f.common.pack(TypeRequestN, streamId, 0); err != nil {
		return nil, err
	}
	return f, nil
}
