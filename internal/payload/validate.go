package payload

// FrameHeaderOverhead is the fixed byte cost of the length prefix plus
// the stream id/type/flags header that every frame pays regardless of
// body size.
const FrameHeaderOverhead = 3 + 6

// FrameLengthMask is the largest value the 24-bit frame length field can
// hold.
const FrameLengthMask = 0x00FFFFFF

// ErrInvalidPayload is reported to the local consumer, and for Responder
// streams carried to the peer as ERROR(INVALID_PAYLOAD), whenever Valid
// rejects a payload.
type ErrInvalidPayload struct {
	Size int
	MTU  int
}

func (e *ErrInvalidPayload) Error() string {
	return "payload: size exceeds frame length limit with no fragmentation configured"
}

// Valid reports whether p can be sent as-is given mtu. With mtu == 0
// (fragmentation disabled) the encoded frame, including its header, must
// fit the 24-bit frame length field. With mtu > 0 any payload is
// accepted; the caller is responsible for routing it through
// fragmentation before it reaches the wire.
func Valid(mtu int, p *Payload) bool {
	if mtu > 0 {
		return true
	}
	size := len(p.Data()) + len(p.Metadata()) + FrameHeaderOverhead
	return size <= FrameLengthMask
}

// Validate is Valid expressed as an error-returning check, for call
// sites that want to propagate *ErrInvalidPayload directly.
func Validate(mtu int, p *Payload) error {
	if Valid(mtu, p) {
		return nil
	}
	return &ErrInvalidPayload{
		Size: len(p.Data()) + len(p.Metadata()) + FrameHeaderOverhead,
		MTU:  mtu,
	}
}
