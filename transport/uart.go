package transport

import (
	"time"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

type UARTConfig struct {
	Port     string
	BaudRate int
}

// UART is a cc13xx.Transport on a serial port. DTR drives the reset line and
// RTS the boot line; both are active low on common USB UART bridges, so an
// asserted signal is a low line.
type UART struct {
	port serial.Port
}

func OpenUART(cfg UARTConfig) (*UART, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can not open serial port '%s'", cfg.Port)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "flushing serial input failed")
	}
	log.WithFields(log.Fields{"port": cfg.Port, "baud": cfg.BaudRate}).Debug("UART transport opened")
	return &UART{port: port}, nil
}

// ListPorts returns the names of all serial ports of the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (u *UART) Write(p []byte) error {
	for len(p) > 0 {
		n, err := u.port.Write(p)
		if err != nil {
			return &cc13xx.LinkError{Op: "uart write", Err: err}
		}
		p = p[n:]
	}
	return nil
}

func (u *UART) Read(n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)
	got := 0
	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, cc13xx.ErrTimeout
		}
		if err := u.port.SetReadTimeout(remaining); err != nil {
			return nil, &cc13xx.LinkError{Op: "uart read timeout", Err: err}
		}
		k, err := u.port.Read(buf[got:])
		if err != nil {
			return nil, &cc13xx.LinkError{Op: "uart read", Err: err}
		}
		if k == 0 {
			return nil, cc13xx.ErrTimeout
		}
		got += k
	}
	return buf, nil
}

func (u *UART) SetLine(line cc13xx.Line, level cc13xx.Level) error {
	asserted := level == cc13xx.Low
	var err error
	switch line {
	case cc13xx.LineReset:
		err = u.port.SetDTR(asserted)
	case cc13xx.LineBoot:
		err = u.port.SetRTS(asserted)
	default:
		return errors.Errorf("line %s not available on UART", line)
	}
	if err != nil {
		return &cc13xx.LinkError{Op: "set " + line.String(), Err: err}
	}
	return nil
}

func (u *UART) PulseLine(line cc13xx.Line, d time.Duration) error {
	if err := u.SetLine(line, cc13xx.Low); err != nil {
		return err
	}
	time.Sleep(d)
	return u.SetLine(line, cc13xx.High)
}

func (u *UART) Close() error {
	return u.port.Close()
}
