package frame

import (
	"io"
	"math"
)

const initialNFieldLen = 4

// decodeInitialN maps the wire's signed 32-bit initial_request_n to the
// saturating unsigned demand used at the API boundary: math.MaxInt32 (the
// value encodeInitialN saturates to) and any value with the high bit set
// are reported as math.MaxInt64, matching the source's
// Long.MAX_VALUE-on-overflow behavior.
func decodeInitialN(raw uint32) uint64 {
	if raw >= math.MaxInt32 {
		return math.MaxInt64
	}
	return uint64(raw)
}

// encodeInitialN saturates n to math.MaxInt32 on the wire; values beyond
// that are indistinguishable from MaxInt32 once encoded and decode as
// math.MaxInt64 (see decodeInitialN).
func encodeInitialN(n uint64) uint32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return uint32(n)
}

// RequestStream initiates a request/stream interaction.
type RequestStream struct {
	common
	initialN uint64
	metadata []byte
	data     []byte
}

func (f *RequestStream) InitialRequestN() uint64 { return f.initialN }
func (f *RequestStream) Metadata() []byte        { return f.metadata }
func (f *RequestStream) Data() []byte            { return f.data }

func (f *RequestStream) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId == 0 {
		return protoError("REQUEST_STREAM stream id must not be zero")
	}
	if bodyLen < initialNFieldLen {
		return frameSizeError(bodyLen, "REQUEST_STREAM")
	}
	var b [initialNFieldLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.initialN = decodeInitialN(order.Uint32(b[:]))
	md, data, err := readMetadataAndData(r, bodyLen-initialNFieldLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func (f *RequestStream) writeTo(w io.Writer) error {
	total := headerSize + initialNFieldLen + metadataDataLen(f.metadata, f.data)
	if err := writeLen24(w, total); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeRequestStream, f.flags); err != nil {
		return err
	}
	var b [initialNFieldLen]byte
	order.PutUint32(b[:], encodeInitialN(f.initialN))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

func PackRequestStream(streamId StreamId, initialN uint64, metadata, data []byte) (*RequestStream, error) {
	f := &RequestStream{initialN: initialN, metadata: metadata, data: data}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if err := f.common.pack(TypeRequestStream, streamId, flags); err != nil {
		return nil, err
	}
	return f, nil
}

// RequestChannel initiates a request/channel interaction: a full-duplex
// stream of payloads in both directions. FlagComplete set means the
// initiator's outbound leg is already complete (no further payloads will
// follow from that side).
type RequestChannel struct {
	common
	initialN uint64
	metadata []byte
	data     []byte
}

func (f *RequestChannel) InitialRequestN() uint64 { return f.initialN }
func (f *RequestChannel) Metadata() []byte        { return f.metadata }
func (f *RequestChannel) Data() []byte            { return f.data }
func (f *RequestChannel) Complete() bool          { return f.flags.Has(FlagComplete) }

func (f *RequestChannel) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId == 0 {
		return protoError("REQUEST_CHANNEL stream id must not be zero")
	}
	if bodyLen < initialNFieldLen {
		return frameSizeError(bodyLen, "REQUEST_CHANNEL")
	}
	var b [initialNFieldLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.initialN = decodeInitialN(order.Uint32(b[:]))
	md, data, err := readMetadataAndData(r, bodyLen-initialNFieldLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func (f *RequestChannel) writeTo(w io.Writer) error {
	total := headerSize + initialNFieldLen + metadataDataLen(f.metadata, f.data)
	if err := writeLen24(w, total); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeRequestChannel, f.flags); err != nil {
		return err
	}
	var b [initialNFieldLen]byte
	order.PutUint32(b[:], encodeInitialN(f.initialN))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

func PackRequestChannel(streamId StreamId, initialN uint64, metadata, data []byte, complete bool) (*RequestChannel, error) {
	f := &RequestChannel{initialN: initialN, metadata: metadata, data: data}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if complete {
		flags.Set(FlagComplete)
	}
	if err := f.common.pack(TypeRequestChannel, streamId, flags); err != nil {
		return nil, err
	}
	return f, nil
}
