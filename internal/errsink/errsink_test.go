package errsink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamwire/rsocket/log"
)

type captureLogger struct {
	level LogLevel
	msg   string
	data  map[string]interface{}
	calls int
}

type LogLevel = log.LogLevel

func (c *captureLogger) Log(_ context.Context, level log.LogLevel, msg string, data map[string]interface{}) {
	c.calls++
	c.level = level
	c.msg = msg
	c.data = data
}

func TestLoggingSinkReportsAtErrorLevel(t *testing.T) {
	cl := &captureLogger{}
	s := NewLoggingSink(cl)
	s.Accept(errors.New("boom"))

	require.Equal(t, 1, cl.calls)
	require.Equal(t, log.LogLevelError, cl.level)
	require.Equal(t, errors.New("boom"), cl.data["error"])
}

func TestLoggingSinkIgnoresNil(t *testing.T) {
	cl := &captureLogger{}
	s := NewLoggingSink(cl)
	s.Accept(nil)
	require.Equal(t, 0, cl.calls)
}

func TestDiscardSinkDropsEverything(t *testing.T) {
	var s DiscardSink
	require.NotPanics(t, func() { s.Accept(errors.New("x")) })
}

func TestChanSinkDeliversAndDropsWhenFull(t *testing.T) {
	s := NewChanSink(1)
	s.Accept(errors.New("first"))
	s.Accept(errors.New("dropped")) // buffer full, must not block

	err := <-s.C
	require.EqualError(t, err, "first")

	select {
	case <-s.C:
		t.Fatal("expected no second error, buffer should have dropped it")
	default:
	}
}
