package transport

import (
	"testing"
	"time"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort hands out queued reads one slice per call. An exhausted queue
// behaves like an expired read timeout.
type fakePort struct {
	serial.Port
	reads    [][]byte
	readErr  error
	written  []byte
	timeouts []time.Duration
	dtr, rts []bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(buf, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	// short writes force the caller to loop
	n := min(len(buf), 3)
	p.written = append(p.written, buf[:n]...)
	return n, nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) SetDTR(v bool) error {
	p.dtr = append(p.dtr, v)
	return nil
}

func (p *fakePort) SetRTS(v bool) error {
	p.rts = append(p.rts, v)
	return nil
}

func TestUARTReadAssemblesPartialReads(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0x03}, {0x40, 0x40}, {0xcc}}}
	u := &UART{port: port}

	got, err := u.Read(3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x40, 0x40}, got)
	assert.Len(t, port.timeouts, 2)
	for _, d := range port.timeouts {
		assert.LessOrEqual(t, d, time.Second)
	}

	got, err = u.Read(1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xcc}, got)
}

func TestUARTReadTimeout(t *testing.T) {
	u := &UART{port: &fakePort{reads: [][]byte{{0x03}}}}
	_, err := u.Read(3, time.Second)
	assert.True(t, errors.Is(err, cc13xx.ErrTimeout), "got %v", err)

	_, err = u.Read(1, 0)
	assert.True(t, errors.Is(err, cc13xx.ErrTimeout), "got %v", err)
}

func TestUARTReadError(t *testing.T) {
	u := &UART{port: &fakePort{readErr: errors.New("device gone")}}
	_, err := u.Read(1, time.Second)

	var le *cc13xx.LinkError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, "uart read", le.Op)
}

func TestUARTWriteLoopsOnShortWrites(t *testing.T) {
	port := &fakePort{}
	u := &UART{port: port}

	frame := []byte{0x0b, 0x4e, 0x21, 0, 0, 0, 0, 0, 0, 0x01, 0x2c}
	require.NoError(t, u.Write(frame))
	assert.Equal(t, frame, port.written)
}

func TestUARTLines(t *testing.T) {
	port := &fakePort{}
	u := &UART{port: port}

	require.NoError(t, u.SetLine(cc13xx.LineBoot, cc13xx.Low))
	require.NoError(t, u.PulseLine(cc13xx.LineReset, 0))
	require.NoError(t, u.SetLine(cc13xx.LineBoot, cc13xx.High))

	// an asserted modem signal pulls the line low
	assert.Equal(t, []bool{true, false}, port.rts)
	assert.Equal(t, []bool{true, false}, port.dtr)
	assert.Error(t, u.SetLine(cc13xx.LineChipSelect, cc13xx.Low))
}
