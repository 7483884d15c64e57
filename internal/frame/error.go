package frame

import "fmt"

// DecodeErrorType classifies failures produced while decoding a frame,
// mirroring the distinction a transport needs to make between "this frame
// is malformed" (kill the stream) and "this frame makes no sense at all"
// (kill the connection).
type DecodeErrorType int

const (
	ErrFrameSize DecodeErrorType = iota
	ErrProtocol
	ErrProtocolStream
)

// DecodeError is returned by Framer.ReadFrame and by individual frame
// readFrom implementations.
type DecodeError struct {
	Kind DecodeErrorType
	error
}

func (e *DecodeError) Type() DecodeErrorType { return e.Kind }
func (e *DecodeError) Unwrap() error         { return e.error }

func frameSizeError(length int, name string) error {
	return &DecodeError{ErrFrameSize, fmt.Errorf("illegal %s frame length: %d", name, length)}
}

func protoError(fmtstr string, args ...interface{}) error {
	return &DecodeError{ErrProtocol, fmt.Errorf(fmtstr, args...)}
}

func protoStreamError(fmtstr string, args ...interface{}) error {
	return &DecodeError{ErrProtocolStream, fmt.Errorf(fmtstr, args...)}
}
