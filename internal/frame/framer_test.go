package frame

import (
	"math"
	"testing"
)

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	var buf buffer
	fr := NewFramer(&buf, &buf)
	if err := fr.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func TestRequestResponseRoundTrip(t *testing.T) {
	f, err := PackRequestResponse(7, []byte("md"), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*RequestResponse)
	if got.StreamId() != 7 || string(got.Metadata()) != "md" || string(got.Data()) != "hello" {
		t.Errorf("got %+v", got)
	}
}

func TestMetadataAbsentVsEmpty(t *testing.T) {
	absent, _ := PackRequestResponse(1, nil, []byte("x"))
	gotAbsent := roundTrip(t, absent).(*RequestResponse)
	if gotAbsent.Metadata() != nil {
		t.Errorf("expected nil (absent) metadata, got %#v", gotAbsent.Metadata())
	}
	if gotAbsent.Flags().Has(FlagMetadata) {
		t.Errorf("absent metadata must not set FlagMetadata")
	}

	empty, _ := PackRequestResponse(1, []byte{}, []byte("x"))
	gotEmpty := roundTrip(t, empty).(*RequestResponse)
	if gotEmpty.Metadata() == nil {
		t.Errorf("expected non-nil empty metadata")
	}
	if len(gotEmpty.Metadata()) != 0 {
		t.Errorf("expected zero-length metadata, got %d bytes", len(gotEmpty.Metadata()))
	}
	if !gotEmpty.Flags().Has(FlagMetadata) {
		t.Errorf("present-but-empty metadata must set FlagMetadata")
	}
}

func TestRequestStreamInitialNSaturates(t *testing.T) {
	f, err := PackRequestStream(3, uint64(math.MaxInt32)+1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*RequestStream)
	if got.InitialRequestN() != math.MaxInt64 {
		t.Errorf("want saturated MaxInt64, got %d", got.InitialRequestN())
	}
}

func TestPayloadFlags(t *testing.T) {
	f, err := PackPayload(9, nil, []byte("x"), true, true)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*Payload)
	if !got.Next() || !got.Complete() {
		t.Errorf("expected NEXT_COMPLETE, got next=%v complete=%v", got.Next(), got.Complete())
	}
}

func TestCancelHasNoBody(t *testing.T) {
	f, err := PackCancel(5)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*Cancel)
	if got.StreamId() != 5 {
		t.Errorf("want stream 5, got %d", got.StreamId())
	}
}

func TestRequestChannelRoundTrip(t *testing.T) {
	f, err := PackRequestChannel(11, 5, []byte("m"), []byte("d"), false)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*RequestChannel)
	if got.InitialRequestN() != 5 || got.Complete() {
		t.Errorf("got %+v", got)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	f, err := PackError(0, ErrorCodeRejectedSetup, []byte("nope"))
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*Error)
	if got.ErrorCode() != ErrorCodeRejectedSetup || string(got.ErrorData()) != "nope" {
		t.Errorf("got %+v", got)
	}
}

func TestSetupRoundTrip(t *testing.T) {
	f, err := PackSetup(1, 0, 30000, 120000, []byte("tok"), "application/json", "application/octet-stream", []byte("md"), []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*Setup)
	if got.MetadataMimeType() != "application/json" || got.DataMimeType() != "application/octet-stream" {
		t.Errorf("mime types wrong: %+v", got)
	}
	if !got.ResumeEnabled() || string(got.ResumeToken()) != "tok" {
		t.Errorf("resume token wrong: %+v", got)
	}
	if got.KeepaliveInterval() != 30000 || got.MaxLifetime() != 120000 {
		t.Errorf("timing wrong: %+v", got)
	}
}

func TestMetadataPushSpansRemainder(t *testing.T) {
	f, err := PackMetadataPush([]byte("all the bytes"))
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*MetadataPush)
	if string(got.Metadata()) != "all the bytes" {
		t.Errorf("got %q", got.Metadata())
	}
}

func TestUnknownFrameIsDropped(t *testing.T) {
	var buf buffer
	fr := NewFramer(&buf, &buf)
	// hand-craft a frame with an unrecognized type (0x30) and a body
	if err := writeLen24(&buf, headerSize+3); err != nil {
		t.Fatal(err)
	}
	if err := writeHeader(&buf, 42, 0x30, 0); err != nil {
		t.Fatal(err)
	}
	buf.b = append(buf.b, 'a', 'b', 'c')

	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	u, ok := got.(*Unknown)
	if !ok {
		t.Fatalf("want *Unknown, got %T", got)
	}
	if string(u.Body()) != "abc" {
		t.Errorf("got body %q", u.Body())
	}
}

func TestLeaseAndKeepaliveRoundTrip(t *testing.T) {
	l, _ := PackLease(5000, 100, nil)
	gotL := roundTrip(t, l).(*Lease)
	if gotL.TimeToLiveMillis() != 5000 || gotL.NumberOfRequests() != 100 {
		t.Errorf("got %+v", gotL)
	}

	k, _ := PackKeepalive(42, []byte("ping"), true)
	gotK := roundTrip(t, k).(*Keepalive)
	if gotK.LastReceivedPosition() != 42 || !gotK.Respond() || string(gotK.Data()) != "ping" {
		t.Errorf("got %+v", gotK)
	}
}

func TestRequestNRoundTrip(t *testing.T) {
	f, err := PackRequestN(3, 17)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*RequestN)
	if got.N() != 17 {
		t.Errorf("want 17 got %d", got.N())
	}
}

func TestResumeRoundTrip(t *testing.T) {
	f, err := PackResume(1, 0, []byte("tok"), 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip(t, f).(*Resume)
	if got.LastReceivedServerPosition() != 10 || got.FirstAvailableClientPosition() != 20 {
		t.Errorf("got %+v", got)
	}

	ok, _ := PackResumeOK(99)
	gotOK := roundTrip(t, ok).(*ResumeOK)
	if gotOK.LastReceivedClientPosition() != 99 {
		t.Errorf("got %+v", gotOK)
	}
}
