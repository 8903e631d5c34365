package cc13xx

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x20}},
		{"download", []byte{0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x2c}},
		{"wrapping checksum", []byte{0xff, 0xff, 0xff}},
		{"max payload", pattern(MaxPayloadLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, len(tt.payload)+2, int(frame[0]))
			assert.Equal(t, checksum(tt.payload), frame[1])

			payload, err := DecodeFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestEncodeFrameLength(t *testing.T) {
	_, err := EncodeFrame(nil)
	assert.Error(t, err)
	_, err = EncodeFrame(make([]byte, MaxPayloadLength+1))
	assert.Error(t, err)
}

func TestDecodeFrameCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"header only", []byte{0x02, 0x00}},
		{"bad checksum", []byte{0x03, 0x21, 0x20}},
		{"size too large", []byte{0x05, 0x20, 0x20}},
		{"size too small", []byte{0x02, 0x20, 0x20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := DecodeFrame(tt.frame)
			assert.Nil(t, payload)
			assert.True(t, errors.Is(err, ErrFrameCorrupt), "got %v", err)
		})
	}
}

func TestBootloaderPacketToWire(t *testing.T) {
	ping := &BootloaderPacket{Cmd: BOOTLOADER_COMMAND_PING}
	wire, err := ping.ToWire()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x20, 0x20}, wire)

	dl := &BootloaderPacket{
		Cmd:    BOOTLOADER_COMMAND_DOWNLOAD,
		Params: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x2c},
	}
	wire, err = dl.ToWire()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0b, 0x4e, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x2c}, wire)

	var back BootloaderPacket
	require.NoError(t, back.FromWire(wire))
	assert.Equal(t, dl.Cmd, back.Cmd)
	assert.Equal(t, dl.Params, back.Params)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SEND_DATA", BOOTLOADER_COMMAND_SEND_DATA.String())
	assert.Equal(t, "COMMAND_7f", BootloaderCommand(0x7f).String())
	assert.Equal(t, "FLASH_FAIL", BOOTLOADER_STATUS_FLASH_FAIL.String())
}

func TestConnWaitAck(t *testing.T) {
	tests := []struct {
		name string
		rx   []byte
		want error
	}{
		{"ack after idle", []byte{0x00, 0x00, 0xcc}, nil},
		{"nack", []byte{0x00, 0x33}, ErrNack},
		{"nothing", nil, ErrTimeout},
		{"only idle", []byte{0x00, 0x00}, ErrTimeout},
		{"garbage", []byte{0x7e}, ErrFrameCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &conn{t: &scriptTransport{rx: tt.rx}, log: quietLogger()}
			err := c.waitAck(testTimeout)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestConnRecvPacket(t *testing.T) {
	st := &scriptTransport{rx: []byte{0x00, 0x00, 0x03, 0x40, 0x40}}
	c := &conn{t: st, log: quietLogger()}

	payload, err := c.recvPacket(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40}, payload)
	assert.Equal(t, []byte{0x00, BOOTLOADER_ACK}, st.written)
}

func TestConnRecvPacketCorruptIsNacked(t *testing.T) {
	st := &scriptTransport{rx: []byte{0x03, 0x41, 0x40}}
	c := &conn{t: st, log: quietLogger()}

	_, err := c.recvPacket(testTimeout)
	assert.True(t, errors.Is(err, ErrFrameCorrupt))
	assert.Equal(t, []byte{0x00, BOOTLOADER_NACK}, st.written)
}
