// Package rerror defines the typed errors that cross the Requester/Responder
// boundary, grounded on the wire error codes a peer can send in an ERROR
// frame (frame.ErrorCode).
package rerror

import (
	"fmt"

	"github.com/streamwire/rsocket/internal/frame"
)

// ApplicationError is delivered to a requester when the peer's handler
// failed; Message is the peer's throwable.toString()-equivalent.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string { return e.Message }

// CustomError carries a peer-assigned numeric error code in the
// 0x00000301-0xFFFFFFFE range, preserved verbatim on the wire.
type CustomError struct {
	Code    frame.ErrorCode
	Message string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("custom error 0x%08x: %s", uint32(e.Code), e.Message)
}

// RejectedError means the peer refused to service the request.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

// CanceledError means the peer canceled the interaction.
type CanceledError struct {
	Message string
}

func (e *CanceledError) Error() string { return e.Message }

// InvalidError means a frame or payload violated the protocol; it is also
// used locally for payload validation failures before any frame is sent.
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string { return e.Message }

// ConnectionError is a connection-level (stream id 0) failure; delivery
// terminates every stream on the connection.
type ConnectionError struct {
	Code    frame.ErrorCode
	Message string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error 0x%08x: %s", uint32(e.Code), e.Message)
}

// FromFrame classifies an inbound ERROR frame into one of the typed errors
// above. streamId 0 always yields a *ConnectionError regardless of code.
func FromFrame(f *frame.Error) error {
	msg := string(f.ErrorData())
	if f.StreamId() == 0 {
		return &ConnectionError{Code: f.ErrorCode(), Message: msg}
	}
	switch f.ErrorCode() {
	case frame.ErrorCodeApplicationError:
		return &ApplicationError{Message: msg}
	case frame.ErrorCodeRejected, frame.ErrorCodeRejectedSetup, frame.ErrorCodeRejectedResume:
		return &RejectedError{Message: msg}
	case frame.ErrorCodeCanceled:
		return &CanceledError{Message: msg}
	case frame.ErrorCodeInvalid:
		return &InvalidError{Message: msg}
	default:
		return &CustomError{Code: f.ErrorCode(), Message: msg}
	}
}

// ToWireCode picks the ERROR frame's wire code for a locally-originated
// failure: a typed error preserves its own code, anything else (including a
// plain handler panic/error) is reported as APPLICATION_ERROR with its
// Error() string as the message, per the responder's error taxonomy.
func ToWireCode(err error) (code frame.ErrorCode, message string) {
	switch e := err.(type) {
	case *CustomError:
		return e.Code, e.Message
	case *RejectedError:
		return frame.ErrorCodeRejected, e.Message
	case *CanceledError:
		return frame.ErrorCodeCanceled, e.Message
	case *InvalidError:
		return frame.ErrorCodeInvalid, e.Message
	case *ApplicationError:
		return frame.ErrorCodeApplicationError, e.Message
	case *ConnectionError:
		return e.Code, e.Message
	default:
		return frame.ErrorCodeApplicationError, err.Error()
	}
}
