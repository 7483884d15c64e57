package frame

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
)

// Framer serializes/deserializes frames to/from an io.Reader/io.Writer
// pair, handling the shared 24-bit length prefix every frame type sits
// behind.
type Framer interface {
	// WriteFrame writes the given frame, length-prefixed, to the
	// underlying transport.
	WriteFrame(Frame) error
	// ReadFrame reads the next length-prefixed frame from the transport.
	// The returned Frame is only valid until the next call to ReadFrame.
	ReadFrame() (Frame, error)
}

type framer struct {
	r io.Reader
	w io.Writer

	// preallocated frame structs, reused across ReadFrame calls like
	// muxado's framer does, to avoid an allocation per frame on the hot path
	setup           Setup
	lease           Lease
	keepalive       Keepalive
	requestResponse RequestResponse
	requestFNF      RequestFNF
	requestStream   RequestStream
	requestChannel  RequestChannel
	requestN        RequestN
	cancel          Cancel
	payload         Payload
	errorFrame      Error
	metadataPush    MetadataPush
	resume          Resume
	resumeOK        ResumeOK
	unknown         Unknown
}

func NewFramer(r io.Reader, w io.Writer) Framer {
	return &framer{r: r, w: w}
}

func (fr *framer) WriteFrame(f Frame) error {
	return f.writeTo(fr.w)
}

func (fr *framer) ReadFrame() (Frame, error) {
	bodyLen, err := readLen24(fr.r)
	if err != nil {
		return nil, err
	}
	if bodyLen < headerSize {
		return nil, frameSizeError(bodyLen, "HEADER")
	}
	streamId, ftype, flags, err := readHeader(fr.r)
	if err != nil {
		return nil, err
	}
	remaining := bodyLen - headerSize

	var f Frame
	switch ftype {
	case TypeSetup:
		fr.setup.common = common{streamId, ftype, flags}
		f = &fr.setup
	case TypeLease:
		fr.lease.common = common{streamId, ftype, flags}
		f = &fr.lease
	case TypeKeepalive:
		fr.keepalive.common = common{streamId, ftype, flags}
		f = &fr.keepalive
	case TypeRequestResponse:
		fr.requestResponse.common = common{streamId, ftype, flags}
		f = &fr.requestResponse
	case TypeRequestFNF:
		fr.requestFNF.common = common{streamId, ftype, flags}
		f = &fr.requestFNF
	case TypeRequestStream:
		fr.requestStream.common = common{streamId, ftype, flags}
		f = &fr.requestStream
	case TypeRequestChannel:
		fr.requestChannel.common = common{streamId, ftype, flags}
		f = &fr.requestChannel
	case TypeRequestN:
		fr.requestN.common = common{streamId, ftype, flags}
		f = &fr.requestN
	case TypeCancel:
		fr.cancel.common = common{streamId, ftype, flags}
		f = &fr.cancel
	case TypePayload:
		fr.payload.common = common{streamId, ftype, flags}
		f = &fr.payload
	case TypeError:
		fr.errorFrame.common = common{streamId, ftype, flags}
		f = &fr.errorFrame
	case TypeMetadataPush:
		fr.metadataPush.common = common{streamId, ftype, flags}
		f = &fr.metadataPush
	case TypeResume:
		fr.resume.common = common{streamId, ftype, flags}
		f = &fr.resume
	case TypeResumeOK:
		fr.resumeOK.common = common{streamId, ftype, flags}
		f = &fr.resumeOK
	default:
		fr.unknown.common = common{streamId, ftype, flags}
		f = &fr.unknown
	}
	if err := f.readFrom(fr.r, remaining); err != nil {
		return nil, err
	}
	return f, nil
}

// debugFramer wraps a Framer and tees every frame read/written to wr, in
// the same tab-separated format a connection trace tool would print.
type debugFramer struct {
	Framer
	mu   sync.Mutex
	wr   *tabwriter.Writer
	once sync.Once
	name string
}

func NewDebugFramer(name string, wr io.Writer, fr Framer) Framer {
	return &debugFramer{Framer: fr, wr: tabwriter.NewWriter(wr, 12, 2, 2, ' ', 0), name: name}
}

func (fr *debugFramer) header() {
	fr.once.Do(func() {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		fmt.Fprintf(fr.wr, "%s\t%s\t%s\t%s\t%s\t%s\n", "NAME", "OP", "TYPE", "STREAMID", "FLAGS", "ERROR")
	})
}

func (fr *debugFramer) WriteFrame(f Frame) error {
	fr.header()
	err := fr.Framer.WriteFrame(f)
	fr.mu.Lock()
	fmt.Fprintf(fr.wr, "%s\t%s\t%s\t%d\t%#x\t%v\n", fr.name, "WRITE", f.Type(), f.StreamId(), f.Flags(), err)
	fr.wr.Flush()
	fr.mu.Unlock()
	return err
}

func (fr *debugFramer) ReadFrame() (Frame, error) {
	fr.header()
	f, err := fr.Framer.ReadFrame()
	fr.mu.Lock()
	defer fr.mu.Unlock()
	defer fr.wr.Flush()
	if err != nil {
		fmt.Fprintf(fr.wr, "%s\t%s\t\t\t\t%v\n", fr.name, "READ", err)
		return f, err
	}
	fmt.Fprintf(fr.wr, "%s\t%s\t%s\t%d\t%#x\t%v\n", fr.name, "READ", f.Type(), f.StreamId(), f.Flags(), nil)
	return f, err
}
