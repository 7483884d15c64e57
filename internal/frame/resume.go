package frame

import "io"

const resumeFixedLen = 2 + 2 + 2 + 8 + 8 // version + token length + two positions

// Resume and ResumeOK are connection-level frames used by the resume
// handshake, which spec.md §1 places outside the engine's scope. The
// engine can encode/decode them (C1's façade is complete) but never
// originates or acts on them itself; a resume collaborator owns that.
type Resume struct {
	common
	majorVersion               uint16
	minorVersion               uint16
	resumeToken                []byte
	lastReceivedServerPosition uint64
	firstAvailableClientPosition uint64
}

func (f *Resume) MajorVersion() uint16                 { return f.majorVersion }
func (f *Resume) MinorVersion() uint16                 { return f.minorVersion }
func (f *Resume) ResumeToken() []byte                  { return f.resumeToken }
func (f *Resume) LastReceivedServerPosition() uint64   { return f.lastReceivedServerPosition }
func (f *Resume) FirstAvailableClientPosition() uint64 { return f.firstAvailableClientPosition }

func (f *Resume) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("RESUME stream id must be zero, got %d", f.streamId)
	}
	if bodyLen < resumeFixedLen {
		return frameSizeError(bodyLen, "RESUME")
	}
	var b [resumeFixedLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.majorVersion = order.Uint16(b[0:2])
	f.minorVersion = order.Uint16(b[2:4])
	tokLen := int(order.Uint16(b[4:6]))
	f.lastReceivedServerPosition = order.Uint64(b[6:14])
	f.firstAvailableClientPosition = order.Uint64(b[14:22])
	if tokLen > bodyLen-resumeFixedLen {
		return protoError("RESUME token length %d exceeds remaining body", tokLen)
	}
	token := make([]byte, tokLen)
	if tokLen > 0 {
		if _, err := io.ReadFull(r, token); err != nil {
			return err
		}
	}
	f.resumeToken = token
	return nil
}

func (f *Resume) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+resumeFixedLen+len(f.resumeToken)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeResume, f.flags); err != nil {
		return err
	}
	var b [resumeFixedLen]byte
	order.PutUint16(b[0:2], f.majorVersion)
	order.PutUint16(b[2:4], f.minorVersion)
	order.PutUint16(b[4:6], uint16(len(f.resumeToken)))
	order.PutUint64(b[6:14], f.lastReceivedServerPosition)
	order.PutUint64(b[14:22], f.firstAvailableClientPosition)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := w.Write(f.resumeToken)
	return err
}

func PackResume(major, minor uint16, token []byte, lastReceivedServerPosition, firstAvailableClientPosition uint64) (*Resume, error) {
	f := &Resume{
		majorVersion:                 major,
		minorVersion:                 minor,
		resumeToken:                  token,
		lastReceivedServerPosition:   lastReceivedServerPosition,
		firstAvailableClientPosition: firstAvailableClientPosition,
	}
	if err := f.common.pack(TypeResume, 0, 0); err != nil {
		return nil, err
	}
	return f, nil
}

const resumeOKFixedLen = 8

type ResumeOK struct {
	common
	lastReceivedClientPosition uint64
}

func (f *ResumeOK) LastReceivedClientPosition() uint64 { return f.lastReceivedClientPosition }

func (f *ResumeOK) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("RESUME_OK stream id must be zero, got %d", f.streamId)
	}
	if bodyLen != resumeOKFixedLen {
		return frameSizeError(bodyLen, "RESUME_OK")
	}
	var b [resumeOKFixedLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.lastReceivedClientPosition = order.Uint64(b[:])
	return nil
}

func (f *ResumeOK) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+resumeOKFixedLen); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeResumeOK, f.flags); err != nil {
		return err
	}
	var b [resumeOKFixedLen]byte
	order.PutUint64(b[:], f.lastReceivedClientPosition)
	_, err := w.Write(b[:])
	return err
}

func PackResumeOK(lastReceivedClientPosition uint64) (*ResumeOK, error) {
	f := &ResumeOK{lastReceivedClientPosition: lastReceivedClientPosition}
	if err := f.common.pack(TypeResumeOK, 0, 0); err != nil {
		return nil, err
	}
	return f, nil
}
