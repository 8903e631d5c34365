package cc13xx

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testTimeout = 10 * time.Millisecond

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions(opts ...Option) []Option {
	return append([]Option{
		WithLogger(quietLogger()),
		WithResetTiming(0, 0, 0),
		WithRetryDelay(0),
		WithLinkAttempts(3, 0),
		WithClockIdle(true),
	}, opts...)
}

func newTestEngine(t Transport, attempts int) *Engine {
	return NewEngine(t, RetryPolicy{Attempts: attempts}, testTimeout, testTimeout, quietLogger())
}

func linkedSession(t *testing.T, sim *Simulator, opts ...Option) *Session {
	t.Helper()
	sess, err := AcquireLink(context.Background(), sim, testOptions(opts...)...)
	require.NoError(t, err)
	require.Equal(t, StateLinked, sess.State())
	return sess
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

// scriptTransport replays canned device bytes and records what the host wrote.
type scriptTransport struct {
	rx      []byte
	written []byte
}

func (s *scriptTransport) Write(p []byte) error {
	s.written = append(s.written, p...)
	return nil
}

func (s *scriptTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	if len(s.rx) < n {
		return nil, ErrTimeout
	}
	buf := s.rx[:n]
	s.rx = s.rx[n:]
	return buf, nil
}

func (s *scriptTransport) SetLine(line Line, level Level) error { return nil }

func (s *scriptTransport) PulseLine(line Line, d time.Duration) error { return nil }
