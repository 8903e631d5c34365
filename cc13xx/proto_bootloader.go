package cc13xx

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

/*
Serial ROM bootloader packet, host to device and device to host:
uint8	size;		// size of the whole packet, including size and checksum
uint8	checksum;	// sum of all payload bytes, modulo 256
uint8	payload[size-2];

Host packets carry the command byte as first payload byte, followed by its
big endian parameters. Every packet is answered by the receiver with an
acknowledge byte (0xcc) or a not-acknowledge byte (0x33), optionally preceded
by idle 0x00 bytes.
*/

type BootloaderCommand byte

const (
	BOOTLOADER_COMMAND_PING         BootloaderCommand = 0x20
	BOOTLOADER_COMMAND_DOWNLOAD     BootloaderCommand = 0x21
	BOOTLOADER_COMMAND_GET_STATUS   BootloaderCommand = 0x23
	BOOTLOADER_COMMAND_SEND_DATA    BootloaderCommand = 0x24
	BOOTLOADER_COMMAND_RESET        BootloaderCommand = 0x25
	BOOTLOADER_COMMAND_SECTOR_ERASE BootloaderCommand = 0x26
	BOOTLOADER_COMMAND_CRC32        BootloaderCommand = 0x27
	BOOTLOADER_COMMAND_GET_CHIP_ID  BootloaderCommand = 0x28
	BOOTLOADER_COMMAND_MEMORY_READ  BootloaderCommand = 0x2a
	BOOTLOADER_COMMAND_MEMORY_WRITE BootloaderCommand = 0x2b
	BOOTLOADER_COMMAND_BANK_ERASE   BootloaderCommand = 0x2c
	BOOTLOADER_COMMAND_SET_CCFG     BootloaderCommand = 0x2d
)

var bootloaderCommandNames = map[BootloaderCommand]string{
	BOOTLOADER_COMMAND_PING:         "PING",
	BOOTLOADER_COMMAND_DOWNLOAD:     "DOWNLOAD",
	BOOTLOADER_COMMAND_GET_STATUS:   "GET_STATUS",
	BOOTLOADER_COMMAND_SEND_DATA:    "SEND_DATA",
	BOOTLOADER_COMMAND_RESET:        "RESET",
	BOOTLOADER_COMMAND_SECTOR_ERASE: "SECTOR_ERASE",
	BOOTLOADER_COMMAND_CRC32:        "CRC32",
	BOOTLOADER_COMMAND_GET_CHIP_ID:  "GET_CHIP_ID",
	BOOTLOADER_COMMAND_MEMORY_READ:  "MEMORY_READ",
	BOOTLOADER_COMMAND_MEMORY_WRITE: "MEMORY_WRITE",
	BOOTLOADER_COMMAND_BANK_ERASE:   "BANK_ERASE",
	BOOTLOADER_COMMAND_SET_CCFG:     "SET_CCFG",
}

func (c BootloaderCommand) String() string {
	if name, ok := bootloaderCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND_%02x", byte(c))
}

// BootloaderStatus is the single byte answered to GET_STATUS. It reflects the
// outcome of the last command the device executed.
type BootloaderStatus byte

const (
	BOOTLOADER_STATUS_SUCCESS     BootloaderStatus = 0x40
	BOOTLOADER_STATUS_UNKNOWN_CMD BootloaderStatus = 0x41
	BOOTLOADER_STATUS_INVALID_CMD BootloaderStatus = 0x42
	BOOTLOADER_STATUS_INVALID_ADR BootloaderStatus = 0x43
	BOOTLOADER_STATUS_FLASH_FAIL  BootloaderStatus = 0x44
)

func (s BootloaderStatus) String() string {
	switch s {
	case BOOTLOADER_STATUS_SUCCESS:
		return "SUCCESS"
	case BOOTLOADER_STATUS_UNKNOWN_CMD:
		return "UNKNOWN_CMD"
	case BOOTLOADER_STATUS_INVALID_CMD:
		return "INVALID_CMD"
	case BOOTLOADER_STATUS_INVALID_ADR:
		return "INVALID_ADR"
	case BOOTLOADER_STATUS_FLASH_FAIL:
		return "FLASH_FAIL"
	default:
		return fmt.Sprintf("STATUS_%02x", byte(s))
	}
}

const (
	BOOTLOADER_ACK  byte = 0xcc
	BOOTLOADER_NACK byte = 0x33
	BOOTLOADER_SYNC byte = 0x55
	BOOTLOADER_IDLE byte = 0x00
)

const (
	frameHeaderLength = 2
	// MaxPayloadLength is the largest payload a single packet can carry.
	MaxPayloadLength = 0xff - frameHeaderLength
	// MaxSendDataLength is the largest data block accepted by SEND_DATA.
	MaxSendDataLength = MaxPayloadLength - 1
)

func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// EncodeFrame prefixes payload with the size and checksum header.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadLength {
		return nil, errors.Errorf("payload length %d out of range 1..%d", len(payload), MaxPayloadLength)
	}
	frame := make([]byte, frameHeaderLength+len(payload))
	frame[0] = byte(len(frame))
	frame[1] = checksum(payload)
	copy(frame[frameHeaderLength:], payload)
	return frame, nil
}

// DecodeFrame validates a complete frame and returns its payload. Every
// failure wraps ErrFrameCorrupt.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderLength+1 {
		return nil, errors.Wrapf(ErrFrameCorrupt, "frame too short (%d bytes)", len(frame))
	}
	size := int(frame[0])
	if size < frameHeaderLength+1 {
		return nil, errors.Wrapf(ErrFrameCorrupt, "invalid size byte %d", size)
	}
	if size != len(frame) {
		return nil, errors.Wrapf(ErrFrameCorrupt, "size byte %d does not match frame length %d", size, len(frame))
	}
	payload := frame[frameHeaderLength:]
	if sum := checksum(payload); sum != frame[1] {
		return nil, errors.Wrapf(ErrFrameCorrupt, "checksum mismatch, got %#02x want %#02x", frame[1], sum)
	}
	return payload, nil
}

type BootloaderPacket struct {
	Cmd    BootloaderCommand
	Params []byte
}

func (p *BootloaderPacket) String() string {
	return fmt.Sprintf("Bootloader Packet cmd: %s (%#02x), params: % x", p.Cmd, byte(p.Cmd), p.Params)
}

func (p *BootloaderPacket) ToWire() ([]byte, error) {
	payload := make([]byte, 1+len(p.Params))
	payload[0] = byte(p.Cmd)
	copy(payload[1:], p.Params)
	return EncodeFrame(payload)
}

func (p *BootloaderPacket) FromWire(frame []byte) error {
	payload, err := DecodeFrame(frame)
	if err != nil {
		return err
	}
	p.Cmd = BootloaderCommand(payload[0])
	p.Params = append([]byte(nil), payload[1:]...)
	return nil
}

// conn runs the acknowledge exchange on top of a Transport.
type conn struct {
	t   Transport
	log logrus.FieldLogger
}

func (c *conn) sendPacket(p *BootloaderPacket, timeout time.Duration) error {
	frame, err := p.ToWire()
	if err != nil {
		return err
	}
	c.log.Debugf("Out: % 02x", frame)
	if err := c.t.Write(frame); err != nil {
		return err
	}
	return c.waitAck(timeout)
}

func (c *conn) waitAck(timeout time.Duration) error {
	b, err := c.readNonIdle(time.Now().Add(timeout))
	if err != nil {
		return err
	}
	switch b {
	case BOOTLOADER_ACK:
		return nil
	case BOOTLOADER_NACK:
		return ErrNack
	default:
		return errors.Wrapf(ErrFrameCorrupt, "unexpected byte %#02x while waiting for acknowledge", b)
	}
}

// readNonIdle skips idle bytes until something else arrives or deadline passes.
func (c *conn) readNonIdle(deadline time.Time) (byte, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		buf, err := c.t.Read(1, remaining)
		if err != nil {
			return 0, err
		}
		if buf[0] != BOOTLOADER_IDLE {
			return buf[0], nil
		}
	}
}

// recvPacket reads one device packet and answers it with ACK, or NACK if it
// is corrupt.
func (c *conn) recvPacket(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	size, err := c.readNonIdle(deadline)
	if err != nil {
		return nil, err
	}
	if int(size) < frameHeaderLength+1 {
		c.sendNack()
		return nil, errors.Wrapf(ErrFrameCorrupt, "invalid size byte %d", size)
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, ErrTimeout
	}
	rest, err := c.t.Read(int(size)-1, remaining)
	if err != nil {
		return nil, err
	}
	frame := append([]byte{size}, rest...)
	c.log.Debugf("In : % 02x", frame)

	payload, err := DecodeFrame(frame)
	if err != nil {
		c.sendNack()
		return nil, err
	}
	if err := c.sendAck(); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *conn) sendAck() error {
	return c.t.Write([]byte{BOOTLOADER_IDLE, BOOTLOADER_ACK})
}

func (c *conn) sendNack() {
	if err := c.t.Write([]byte{BOOTLOADER_IDLE, BOOTLOADER_NACK}); err != nil {
		c.log.WithError(err).Debug("sending NACK failed")
	}
}

// sync sends the UART auto-baud pattern and waits for the device to lock on.
func (c *conn) sync(timeout time.Duration) error {
	if err := c.t.Write([]byte{BOOTLOADER_SYNC, BOOTLOADER_SYNC}); err != nil {
		return err
	}
	return c.waitAck(timeout)
}
