package frame

import "io"

// Cancel tells the peer to stop a request in flight. It carries no body.
type Cancel struct {
	common
}

func (f *Cancel) readFrom(r io.Reader, bodyLen int) error {
	if bodyLen != 0 {
		return frameSizeError(bodyLen, "CANCEL")
	}
	if f.streamId == 0 {
		return protoError("CANCEL stream id must not be zero")
	}
	return nil
}

func (f *Cancel) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize); err != nil {
		return err
	}
	return writeHeader(w, f.streamId, TypeCancel, f.flags)
}

func PackCancel(streamId StreamId) (*Cancel, error) {
	f := &Cancel{}
	if err := f.common.pack(TypeCancel, streamId, 0); err != nil {
		return nil, err
	}
	return f, nil
}
