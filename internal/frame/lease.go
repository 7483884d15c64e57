package frame

import "io"

const leaseFixedLen = 8

// Lease grants the peer a bounded budget of requests over a time window.
// Lease negotiation itself is an external collaborator (spec.md §1); this
// is purely the wire encoding.
type Lease struct {
	common
	timeToLiveMillis uint32
	numberOfRequests uint32
	metadata         []byte
}

func (f *Lease) TimeToLiveMillis() uint32 { return f.timeToLiveMillis }
func (f *Lease) NumberOfRequests() uint32 { return f.numberOfRequests }
func (f *Lease) Metadata() []byte         { return f.metadata }

func (f *Lease) readFrom(r io.Reader, bodyLen int) error {
	if f.streamId != 0 {
		return protoError("LEASE stream id must be zero, got %d", f.streamId)
	}
	if bodyLen < leaseFixedLen {
		return frameSizeError(bodyLen, "LEASE")
	}
	var b [leaseFixedLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	f.timeToLiveMillis = order.Uint32(b[0:4])
	f.numberOfRequests = order.Uint32(b[4:8])
	md, _, err := readMetadataAndData(r, bodyLen-leaseFixedLen, f.flags.Has(FlagMetadata))
	if err != nil {
		return err
	}
	f.metadata = md
	return nil
}

func (f *Lease) writeTo(w io.Writer) error {
	total := headerSize + leaseFixedLen
	if f.metadata != nil {
		total += lengthFieldSize + len(f.metadata)
	}
	if err := writeLen24(w, total); err != nil {
		return err
	}
	if err := writeHeader(w, f.streamId, TypeLease, f.flags); err != nil {
		return err
	}
	var b [leaseFixedLen]byte
	order.PutUint32(b[0:4], f.timeToLiveMillis)
	order.PutUint32(b[4:8], f.numberOfRequests)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	return writeMetadataAndData(w, f.metadata, nil)
}

func PackLease(ttlMillis, numRequests uint32, metadata []byte) (*Lease, error) {
	f := &Lease{timeToLiveMillis: ttlMillis, numberOfRequests: numRequests, metadata: metadata}
	var flags Flags
	if metadata != nil {
		flags.Set(FlagMetadata)
	}
	if err := f.common.pack(TypeLease, 0, flags); err != nil {
		return nil, err
	}
	return f, nil
}
