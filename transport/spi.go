package transport

import (
	"time"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// The ROM samples on the rising edge with an idle high clock.
const (
	DefaultSPISpeed = 4 * physic.MegaHertz
	spiMode         = spi.Mode3
)

type SPIConfig struct {
	// Port name as known to spireg, e.g. "/dev/spidev0.0". Empty selects the
	// first port found.
	Port  string
	Speed physic.Frequency
	// GPIO names as known to gpioreg, e.g. "GPIO17".
	ResetPin string
	BootPin  string
	// Optional, most SPI controllers drive chip select themselves.
	ChipSelectPin string
}

// SPI is a cc13xx.Transport on a periph.io SPI port with GPIO driven reset
// and boot lines. The device answers while the host clocks, so bytes other
// than idle received during a write are kept for the next read.
type SPI struct {
	port  spi.PortCloser
	conn  spi.Conn
	reset gpio.PinIO
	boot  gpio.PinIO
	cs    gpio.PinIO
	rx    []byte
}

func OpenSPI(cfg SPIConfig) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host initialization failed")
	}
	if cfg.Speed == 0 {
		cfg.Speed = DefaultSPISpeed
	}

	res := &SPI{}
	var err error
	if res.reset, err = pinByName(cfg.ResetPin, "reset"); err != nil {
		return nil, err
	}
	if res.boot, err = pinByName(cfg.BootPin, "boot"); err != nil {
		return nil, err
	}
	if cfg.ChipSelectPin != "" {
		if res.cs, err = pinByName(cfg.ChipSelectPin, "chip select"); err != nil {
			return nil, err
		}
	}

	if res.port, err = spireg.Open(cfg.Port); err != nil {
		return nil, errors.Wrapf(err, "can not open SPI port '%s'", cfg.Port)
	}
	if res.conn, err = res.port.Connect(cfg.Speed, spiMode, 8); err != nil {
		res.port.Close()
		return nil, errors.Wrap(err, "SPI connection failed")
	}
	log.WithFields(log.Fields{
		"port":  cfg.Port,
		"speed": cfg.Speed.String(),
		"reset": res.reset.Name(),
		"boot":  res.boot.Name(),
	}).Debug("SPI transport opened")
	return res, nil
}

func pinByName(name, role string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.Errorf("no GPIO given for %s line", role)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("unknown GPIO '%s' for %s line", name, role)
	}
	return p, nil
}

func (s *SPI) tx(w, r []byte) error {
	if s.cs != nil {
		if err := s.cs.Out(gpio.Low); err != nil {
			return &cc13xx.LinkError{Op: "spi chip select", Err: err}
		}
	}
	txErr := s.conn.Tx(w, r)
	if s.cs != nil {
		if err := s.cs.Out(gpio.High); err != nil && txErr == nil {
			txErr = err
		}
	}
	if txErr != nil {
		return &cc13xx.LinkError{Op: "spi transfer", Err: txErr}
	}
	return nil
}

func (s *SPI) Write(p []byte) error {
	r := make([]byte, len(p))
	if err := s.tx(p, r); err != nil {
		return err
	}
	for _, b := range r {
		if b != cc13xx.BOOTLOADER_IDLE {
			s.rx = append(s.rx, b)
		}
	}
	return nil
}

// Read clocks idle bytes until n bytes are in. It never blocks, idle bytes
// the device sends while busy are returned to the caller.
func (s *SPI) Read(n int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
	if len(s.rx) > 0 {
		k := min(n, len(s.rx))
		out = append(out, s.rx[:k]...)
		s.rx = s.rx[k:]
	}
	if need := n - len(out); need > 0 {
		buf := make([]byte, need)
		if err := s.tx(make([]byte, need), buf); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	return out, nil
}

func (s *SPI) pin(line cc13xx.Line) (gpio.PinIO, error) {
	switch line {
	case cc13xx.LineReset:
		return s.reset, nil
	case cc13xx.LineBoot:
		return s.boot, nil
	case cc13xx.LineChipSelect:
		if s.cs != nil {
			return s.cs, nil
		}
	}
	return nil, errors.Errorf("line %s not wired", line)
}

func (s *SPI) SetLine(line cc13xx.Line, level cc13xx.Level) error {
	p, err := s.pin(line)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		return &cc13xx.LinkError{Op: "set " + line.String(), Err: err}
	}
	return nil
}

func (s *SPI) PulseLine(line cc13xx.Line, d time.Duration) error {
	if err := s.SetLine(line, cc13xx.Low); err != nil {
		return err
	}
	time.Sleep(d)
	return s.SetLine(line, cc13xx.High)
}

func (s *SPI) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
