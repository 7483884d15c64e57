package frame

import (
	"io"
)

// writeMetadataAndData writes an optional 24-bit-length-prefixed metadata
// block followed by the data block. metadata == nil means "no metadata
// field"; metadata != nil (including a zero-length slice) means "present,
// possibly empty" and the caller must have already set FlagMetadata.
func writeMetadataAndData(w io.Writer, metadata, data []byte) error {
	if metadata != nil {
		if err := writeLen24(w, len(metadata)); err != nil {
			return err
		}
		if len(metadata) > 0 {
			if _, err := w.Write(metadata); err != nil {
				return err
			}
		}
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// readMetadataAndData reads the metadata/data tail of a frame body given
// the number of bytes remaining and whether FlagMetadata was set.
// metadata is nil iff hasMetadata is false, distinguishing "absent" from
// "present but empty".
func readMetadataAndData(r io.Reader, remaining int, hasMetadata bool) (metadata, data []byte, err error) {
	if hasMetadata {
		mlen, err := readLen24(r)
		if err != nil {
			return nil, nil, err
		}
		remaining -= lengthFieldSize
		if mlen > remaining {
			return nil, nil, protoError("metadata length %d exceeds remaining frame body %d", mlen, remaining)
		}
		metadata = make([]byte, mlen)
		if mlen > 0 {
			if _, err := io.ReadFull(r, metadata); err != nil {
				return nil, nil, err
			}
		}
		remaining -= mlen
	}
	if remaining < 0 {
		return nil, nil, protoError("negative remaining frame body length")
	}
	data = make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, nil, err
		}
	}
	return metadata, data, nil
}

func metadataDataLen(metadata, data []byte) int {
	n := len(data)
	if metadata != nil {
		n += lengthFieldSize + len(metadata)
	}
	return n
}
