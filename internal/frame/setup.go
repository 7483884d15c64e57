package frame

import "io"

const setupFixedLen = 2 + 2 + 4 + 4 // version(major,minor) + keepalive interval + max lifetime

// Setup is the connection-level handshake frame. The engine treats setup
// negotiation itself as an external collaborator (spec.md §1); this type
// only carries the wire fields through to that collaborator.
type Setup struct {
	common
	majorVersion      uint16
	minorVersion      uint16
	keepaliveInterval uint32
	maxLifetime       uint32
	resumeToken       []byte // nil unless FlagResumeEnable is set
	metadataMimeType  string
	dataMimeType      string
	metadata          []byte
	data              []byte
}

func (f *Setup) MajorVersion() uint16      { return f.majorVersion }
func (f *Setup) MinorVersion() uint16      { return f.minorVersion }
func (f *Setup) KeepaliveInterval() uint32 { return f.keepaliveInterval }
func (f *Setup) MaxLifetime() uint32       { return f.maxLifetime }
func (f *Setup) ResumeEnabled() bool       { return f.flags.Has(FlagResumeEnable) }
func (f *Setup) ResumeToken() []byte       { return f.resumeToken }
func (f *Setup) MetadataMimeType() string  { return f.metadataMimeType }
func (f *Setup) DataMimeType() string      { return f.dataMimeType }
func (f *Setup) Metadata() []byte          { return f.metadata }
func (f *Setup) Data() []byte              { return f.data }

func (f *Setup) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("SETUP stream id must be zero, got %d", f.streamId)
	}
	if bodyLen < setupFixedLen {
		return frameSizeError(bodyLen, "SETUP")
	}
	var b [setupFixedLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.majorVersion = order.Uint16(b[0:2])
	f.minorVersion = order.Uint16(b[2:4])
	f.keepaliveInterval = order.Uint32(b[4:8])
	f.maxLifetime = order.Uint32(b[8:12])
	remaining := bodyLen - setupFixedLen

	if f.flags.Has(FlagResumeEnable) {
		var lb [2]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return err
		}
		tokLen := int(order.Uint16(lb[:]))
		remaining -= 2
		if tokLen > remaining {
			return protoError("SETUP resume token length %d exceeds remaining body %d", tokLen, remaining)
		}
		f.resumeToken = make([]byte, tokLen)
		if tokLen > 0 {
			if _, err := io.ReadFull(r, f.resumeToken); err != nil {
				return err
			}
		}
		remaining -= tokLen
	}

	mimeMD, err := readMimeType(r, &remaining)
	if err != nil {
		return err
	}
	mimeData, err := readMimeType(r, &remaining)
	if err != nil {
		return err
	}
	f.metadataMimeType, f.dataMimeType = mimeMD, mimeData

	md, data, err := readMetadataAndData(r, remaining, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata, f.data = md, data
	return nil
}

func readMimeType(r io.Reader, remaining *int) (string, error) {
	var lb [1]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", err
	}
	n := int(lb[0])
	*remaining--
	if n > *remaining {
		return "", protoError("SETUP mime type length %d exceeds remaining body %d", n, *remaining)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	*remaining -= n
	return string(buf), nil
}

func (f *Setup) writeTo(w io.Writer) error {
	total := headerSize + setupFixedLen
	if f.flags.Has(FlagResumeEnable) {
		total += 2 + len(f.resumeToken)
	}
	total += 1 + len(f.metadataMimeType) + 1 + len(f.dataMimeType)
	total += metadataDataLen(f.metadata, f.data)

	if err := writeLen24(w, total); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeSetup, f.flags); err != nil {
		return err
	}
	var b [setupFixedLen]byte
	order.PutUint16(b[0:2], f.majorVersion)
	order.PutUint16(b[2:4], f.minorVersion)
	order.PutUint32(b[4:8], f.keepaliveInterval)
	order.PutUint32(b[8:12], f.maxLifetime)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	if f.flags.Has(FlagResumeEnable) {
		var lb [2]byte
		order.PutUint16(lb[:], uint16(len(f.resumeToken)))
		if _, err := w.Write(lb[:]); err != nil {
			return err
		}
		if _, err := w.Write(f.resumeToken); err != nil {
			return err
		}
	}
	if err := writeMimeType(w, f.metadataMimeType); err != nil {
		return err
	}
	if err := writeMimeType(w, f.dataMimeType); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, f.data)
}

func writeMimeType(w io.Writer, mime string) error {
	if len(mime) > 0xFF {
		return protoError("mime type too long: %d", len(mime))
	}
	if _, err := w.Write([]byte{byte(len(mime))}); err != nil {
		return err
	}
	_, err := io.WriteString(w, mime)
	return err
}

// PackSetup encodes a SETUP frame.
func PackSetup(major, minor uint16, keepaliveInterval, maxLifetime uint32, resumeToken []byte, metadataMime, dataMime string, metadata, data []byte) (*Setup, error) {
	f := &Setup{
		majorVersion:      major,
		minorVersion:      minor,
		keepaliveInterval: keepaliveInterval,
		maxLifetime:       maxLifetime,
		resumeToken:       resumeToken,
		metadataMimeType:  metadataMime,
		dataMimeType:      dataMime,
		metadata:          metadata,
		data:              data,
	}
	var flags Flags
	if resumeToken != nil {
		flags.Set(FlagResumeEnable)
	}
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if err := f.common.pack(TypeSetup, 0, flags); err != nil {
		return nil, err
	}
	return f, nil
}
