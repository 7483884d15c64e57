package frame

import "io"

// MetadataPush carries out-of-band metadata with no associated stream.
// Unlike every other metadata-bearing frame, its metadata is not length
// prefixed: it spans the remainder of the frame body (spec.md §6).
type MetadataPush struct {
	common
	metadata []byte
}

func (f *MetadataPush) Metadata() []byte { return f.metadata }

func (f *MetadataPush) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("METADATA_PUSH stream id must be zero, got %d", f.streamId)
	}
	metadata := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, metadata); err != nil {
			return err
		}
	}
	f.metadata = metadata
	return nil
}

func (f *MetadataPush) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+len(f.metadata)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeMetadataPush, f.flags); err != nil {
		return err
	}
	_, err := w.Write(f.metadata)
	return err
}

func PackMetadataPush(metadata []byte) (*MetadataPush, error) {
	f := &MetadataPush{metadata: metadata}
	var flags Flags
	flags.Set(FlagMetadata)
	if err := f.common.pack(TypeMetadataPush, 0, flags); err != nil {
		return nil, err
	}
	return f, nil
}
