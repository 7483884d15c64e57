package frame

import "io"

// Payload carries a response/stream element. FlagNext means "this frame
// carries data to deliver"; FlagComplete means "this is the last frame
// for the stream"; both may be set (NEXT_COMPLETE).
type Payload struct {
	common
	metadata []byte
	data     []byte
}

func (f *Payload) Metadata() []byte { return f.metadata }
func (f *Payload) Data() []byte     { return f.data }
func (f *Payload) Next() bool       { return f.flags.Has(FlagNext) }
func (f *Payload) Complete() bool   { return f.flags.Has(FlagComplete) }
func (f *Payload) Follows() bool    { return f.flags.Has(FlagFollows) }

func (f *Payload) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId == 0 {
		return protoError("PAYLOAD stream id must not be zero")
	}
	md, data, err := readMetadataAndData(r, bodyLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func (f *Payload) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+metadataDataLen(f.metadata, f.data)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypePayload, f.flags); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

// PackPayload encodes a PAYLOAD frame. Exactly one of next/complete must
// be considered by the caller per the interaction's semantics; both may
// be true for NEXT_COMPLETE.
func PackPayload(streamId StreamId, metadata, data []byte, next, complete bool) (*Payload, error) {
	f := &Payload{metadata: metadata, data: data}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if next {
		flags.Set(FlagNext)
	}
	if complete {
		flags.Set(FlagComplete)
	}
	if err := f.common.pack(TypePayload, streamId, flags); err != nil {
		return nil, err
	}
	return f, nil
}
