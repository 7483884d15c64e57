package frame

import "io"

// RequestResponse initiates a request/response interaction.
type RequestResponse struct {
	common
	metadata []byte // nil means "no metadata field"
	data     []byte
}

func (f *RequestResponse) Metadata() []byte { return f.metadata }
func (f *RequestResponse) Data() []byte     { return f.data }

func (f *RequestResponse) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId == 0 {
		return protoError("REQUEST_RESPONSE stream id must not be zero")
	}
	md, data, err := readMetadataAndData(r, bodyLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func (f *RequestResponse) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+metadataDataLen(f.metadata, f.data)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeRequestResponse, f.flags); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

// PackRequestResponse encodes a REQUEST_RESPONSE frame. metadata == nil
// means "absent"; pass an empty, non-nil slice for "present but empty".
func PackRequestResponse(streamId StreamId, metadata, data []byte) (*RequestResponse, error) {
	f := &RequestResponse{metadata: metadata, data: data}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if err := f.common.pack(TypeRequestResponse, streamId, flags); err != nil {
		return nil, err
	}
	return f, nil
}

// RequestFNF initiates a fire-and-forget request; no response is expected.
type RequestFNF struct {
	common
	metadata []byte
	data     []byte
}

func (f *RequestFNF) Metadata() []byte { return f.metadata }
func (f *RequestFNF) Data() []byte     { return f.data }

func (f *RequestFNF) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId == 0 {
		return protoError("REQUEST_FNF stream id must not be zero")
	}
	md, data, err := readMetadataAndData(r, bodyLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func (f *RequestFNF) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+metadataDataLen(f.metadata, f.data)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeRequestFNF, f.flags); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

func PackRequestFNF(streamId StreamId, metadata, data []byte) (*RequestFNF, error) {
	f := &RequestFNF{metadata: metadata, data: data}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if err := f.common.pack(TypeRequestFNF, streamId, flags); err != nil {
		return nil, err
	}
	return f, nil
}
