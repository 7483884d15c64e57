package frame

import "io"

const errorCodeFieldLen = 4

// ErrorCode is the 32-bit wire error code carried by an ERROR frame.
type ErrorCode uint32

// Wire error codes from the RSocket protocol (spec.md §6).
const (
	ErrorCodeInvalidSetup     ErrorCode = 0x00000001
	ErrorCodeUnsupportedSetup ErrorCode = 0x00000002
	ErrorCodeRejectedSetup    ErrorCode = 0x00000003
	ErrorCodeRejectedResume   ErrorCode = 0x00000004
	ErrorCodeConnectionError  ErrorCode = 0x00000101
	ErrorCodeConnectionClose  ErrorCode = 0x00000102
	ErrorCodeApplicationError ErrorCode = 0x00000201
	ErrorCodeRejected         ErrorCode = 0x00000202
	ErrorCodeCanceled         ErrorCode = 0x00000203
	ErrorCodeInvalid          ErrorCode = 0x00000204
	// custom error codes occupy 0x00000301-0xFFFFFFFE
)

// Error carries a stream-level or connection-level (stream id 0) failure.
type Error struct {
	common
	errorCode ErrorCode
	data      []byte // UTF-8 error message; no metadata field on ERROR
}

func (f *Error) ErrorCode() ErrorCode { return f.errorCode }
func (f *Error) ErrorData() []byte    { return f.data }

func (f *Error) readFrom(r io.Reader, bodyLen int) error {
	if bodyLen < errorCodeFieldLen {
		return frameSizeError(bodyLen, "ERROR")
	}
	var b [errorCodeFieldLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.errorCode = ErrorCode(order.Uint32(b[:]))
	data := make([]byte, bodyLen-errorCodeFieldLen)
	if len(data) > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
	}
	f.data = data
	return nil
}

func (f *Error) writeTo(w io.Writer) error {
	if err := writeLen24(w, headerSize+errorCodeFieldLen+len(f.data)); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeError, f.flags); err != nil {
		return err
	}
	var b [errorCodeFieldLen]byte
	order.PutUint32(b[:], uint32(f.errorCode))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	if len(f.data) > 0 {
		_, err := w.Write(f.data)
		return err
	}
	return nil
}

// PackError encodes an ERROR frame. streamId 0 terminates the connection.
func PackError(streamId StreamId, code ErrorCode, data []byte) (*Error, error) {
	f := &Error{errorCode: code, data: data}
	if err := f.common.pack(TypeError, streamId, 0); err != nil {
		return nil, err
	}
	return f, nil
}
