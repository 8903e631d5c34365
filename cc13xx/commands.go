package cc13xx

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RetryPolicy applies to every transaction. Attempts is the total number of
// tries, not the number of retries.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

type ResponseShape int

const (
	ResponseNone ResponseShape = iota
	// ResponseFixed requires exactly ResponseLen bytes.
	ResponseFixed
	// ResponseVariable takes the length from the frame size byte. A non-zero
	// ResponseLen bounds it.
	ResponseVariable
)

// Transaction is one command exchange: packet out, acknowledge in and, for
// commands with a response, packet in and acknowledge out.
type Transaction struct {
	Cmd         BootloaderCommand
	Params      []byte
	Response    ResponseShape
	ResponseLen int
	// Zero uses the engine default.
	Timeout time.Duration
}

// Engine executes bootloader commands with uniform retry handling.
type Engine struct {
	conn         *conn
	retry        RetryPolicy
	timeout      time.Duration
	eraseTimeout time.Duration
	log          logrus.FieldLogger
}

func NewEngine(t Transport, retry RetryPolicy, timeout, eraseTimeout time.Duration, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		conn:         &conn{t: t, log: log},
		retry:        retry,
		timeout:      timeout,
		eraseTimeout: eraseTimeout,
		log:          log,
	}
}

// Exec runs tx, retrying transport level failures. The context is only
// consulted before the transaction starts.
func (e *Engine) Exec(ctx context.Context, tx Transaction) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	timeout := tx.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	attempts := e.retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && e.retry.Delay > 0 {
			time.Sleep(e.retry.Delay)
		}
		resp, err := e.once(tx, timeout)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		e.log.WithFields(logrus.Fields{
			"cmd":     tx.Cmd.String(),
			"attempt": attempt,
		}).WithError(err).Debug("transaction failed")
	}
	return nil, &CommandFailedError{Cmd: tx.Cmd, Attempts: attempts, Err: lastErr}
}

func (e *Engine) once(tx Transaction, timeout time.Duration) ([]byte, error) {
	p := &BootloaderPacket{Cmd: tx.Cmd, Params: tx.Params}
	if err := e.conn.sendPacket(p, timeout); err != nil {
		return nil, err
	}
	if tx.Response == ResponseNone {
		return nil, nil
	}
	payload, err := e.conn.recvPacket(timeout)
	if err != nil {
		return nil, err
	}
	switch {
	case tx.Response == ResponseFixed && len(payload) != tx.ResponseLen:
		return nil, errors.Wrapf(ErrFrameCorrupt, "%s answered %d bytes, expected %d", tx.Cmd, len(payload), tx.ResponseLen)
	case tx.Response == ResponseVariable && tx.ResponseLen > 0 && len(payload) > tx.ResponseLen:
		return nil, errors.Wrapf(ErrFrameCorrupt, "%s answered %d bytes, at most %d expected", tx.Cmd, len(payload), tx.ResponseLen)
	}
	return payload, nil
}

// Sync runs the UART auto-baud exchange once, without retries.
func (e *Engine) Sync() error {
	return e.conn.sync(e.timeout)
}

func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.Exec(ctx, Transaction{Cmd: BOOTLOADER_COMMAND_PING})
	return err
}

func (e *Engine) GetStatus(ctx context.Context) (BootloaderStatus, error) {
	resp, err := e.Exec(ctx, Transaction{
		Cmd:         BOOTLOADER_COMMAND_GET_STATUS,
		Response:    ResponseFixed,
		ResponseLen: 1,
	})
	if err != nil {
		return 0, err
	}
	return BootloaderStatus(resp[0]), nil
}

func (e *Engine) checkStatus(ctx context.Context, cmd BootloaderCommand) error {
	status, err := e.GetStatus(ctx)
	if err != nil {
		return err
	}
	if status != BOOTLOADER_STATUS_SUCCESS {
		return &StatusError{Cmd: cmd, Status: status}
	}
	return nil
}

func (e *Engine) GetChipID(ctx context.Context) (uint32, error) {
	resp, err := e.Exec(ctx, Transaction{
		Cmd:         BOOTLOADER_COMMAND_GET_CHIP_ID,
		Response:    ResponseFixed,
		ResponseLen: 4,
	})
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(resp), nil
}

// Download announces a program transfer of size bytes to addr. The data
// follows with SendData.
func (e *Engine) Download(ctx context.Context, addr, size uint32) error {
	params := make([]byte, 8)
	binary.BigEndian.PutUint32(params[0:], addr)
	binary.BigEndian.PutUint32(params[4:], size)
	if _, err := e.Exec(ctx, Transaction{Cmd: BOOTLOADER_COMMAND_DOWNLOAD, Params: params}); err != nil {
		return err
	}
	return e.checkStatus(ctx, BOOTLOADER_COMMAND_DOWNLOAD)
}

func (e *Engine) SendData(ctx context.Context, data []byte) error {
	if len(data) == 0 || len(data) > MaxSendDataLength {
		return errors.Errorf("send data length %d out of range 1..%d", len(data), MaxSendDataLength)
	}
	if _, err := e.Exec(ctx, Transaction{Cmd: BOOTLOADER_COMMAND_SEND_DATA, Params: data}); err != nil {
		return err
	}
	return e.checkStatus(ctx, BOOTLOADER_COMMAND_SEND_DATA)
}

func (e *Engine) SectorErase(ctx context.Context, addr uint32) error {
	params := make([]byte, 4)
	binary.BigEndian.PutUint32(params, addr)
	if _, err := e.Exec(ctx, Transaction{
		Cmd:     BOOTLOADER_COMMAND_SECTOR_ERASE,
		Params:  params,
		Timeout: e.eraseTimeout,
	}); err != nil {
		return err
	}
	return e.checkStatus(ctx, BOOTLOADER_COMMAND_SECTOR_ERASE)
}

func (e *Engine) BankErase(ctx context.Context) error {
	if _, err := e.Exec(ctx, Transaction{
		Cmd:     BOOTLOADER_COMMAND_BANK_ERASE,
		Timeout: e.eraseTimeout,
	}); err != nil {
		return err
	}
	return e.checkStatus(ctx, BOOTLOADER_COMMAND_BANK_ERASE)
}

// CRC32 asks the device for the IEEE CRC32 of size bytes at addr.
func (e *Engine) CRC32(ctx context.Context, addr, size uint32) (uint32, error) {
	params := make([]byte, 12)
	binary.BigEndian.PutUint32(params[0:], addr)
	binary.BigEndian.PutUint32(params[4:], size)
	// params[8:12]: read repeat count, 0
	resp, err := e.Exec(ctx, Transaction{
		Cmd:         BOOTLOADER_COMMAND_CRC32,
		Params:      params,
		Response:    ResponseFixed,
		ResponseLen: 4,
		Timeout:     e.eraseTimeout,
	})
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(resp), nil
}

const (
	memoryAccess8  byte = 0x00
	memoryAccess32 byte = 0x01

	maxMemoryReadWords = MaxPayloadLength / 4
)

// MemoryRead32 reads count 32 bit words starting at addr. The device returns
// the words little endian.
func (e *Engine) MemoryRead32(ctx context.Context, addr uint32, count int) ([]uint32, error) {
	if count < 1 || count > maxMemoryReadWords {
		return nil, errors.Errorf("memory read count %d out of range 1..%d", count, maxMemoryReadWords)
	}
	params := make([]byte, 6)
	binary.BigEndian.PutUint32(params, addr)
	params[4] = memoryAccess32
	params[5] = byte(count)
	resp, err := e.Exec(ctx, Transaction{
		Cmd:         BOOTLOADER_COMMAND_MEMORY_READ,
		Params:      params,
		Response:    ResponseVariable,
		ResponseLen: count * 4,
	})
	if err != nil {
		return nil, err
	}
	if len(resp) != count*4 {
		return nil, errors.Wrapf(ErrFrameCorrupt, "memory read of %d words returned %d bytes", count, len(resp))
	}
	words := make([]uint32, count)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(resp[i*4:])
	}
	return words, nil
}

// Reset leaves the bootloader and starts the application.
func (e *Engine) Reset(ctx context.Context) error {
	_, err := e.Exec(ctx, Transaction{Cmd: BOOTLOADER_COMMAND_RESET})
	return err
}
