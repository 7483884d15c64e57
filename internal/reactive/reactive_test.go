package reactive

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamwire/rsocket/internal/payload"
)

func TestCreditAddAndTake(t *testing.T) {
	var c Credit
	require.EqualValues(t, 0, c.Load())
	c.Add(3)
	require.EqualValues(t, 3, c.Load())

	require.True(t, c.Take())
	require.True(t, c.Take())
	require.True(t, c.Take())
	require.False(t, c.Take())
}

func TestCreditSaturatesAtMaxInt64(t *testing.T) {
	c := Credit{n: math.MaxInt64 - 10}
	c.Add(math.MaxUint32)
	require.EqualValues(t, math.MaxInt64, c.Load())

	c.Add(1) // already saturated; must stay put, not wrap
	require.EqualValues(t, math.MaxInt64, c.Load())
}

func TestCreditConcurrentAdd(t *testing.T) {
	var c Credit
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(1)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 100, c.Load())
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSubscriber) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnSubscribe(Subscription) { r.record("subscribe") }
func (r *recordingSubscriber) OnNext(p *payload.Payload) {
	r.record("next:" + string(p.Data()))
	p.Release()
}
func (r *recordingSubscriber) OnError(error) { r.record("error") }
func (r *recordingSubscriber) OnComplete()   { r.record("complete") }

func TestSerializedSubscriberPreservesOrderUnderConcurrency(t *testing.T) {
	rec := &recordingSubscriber{}
	s := NewSerializedSubscriber(rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.OnNext(payload.New([]byte{byte(i)}, nil, nil))
		}(i)
	}
	wg.Wait()
	s.OnComplete()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 51)
	require.Equal(t, "complete", rec.events[50])
}

func TestSerializerReentrantRunDoesNotDeadlock(t *testing.T) {
	var ser serializer
	done := make(chan struct{})
	ser.run(func() {
		ser.run(func() {
			close(done)
		})
	})
	select {
	case <-done:
	default:
		t.Fatal("nested run did not execute")
	}
}
