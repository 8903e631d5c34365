// Copyright © 2019 Marcus Mengs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/mame82/cc13flash/transport"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

type closingTransport interface {
	cc13xx.Transport
	io.Closer
}

func openTransport() (closingTransport, error) {
	switch tmpTransport {
	case "spi":
		return transport.OpenSPI(transport.SPIConfig{
			Port:          tmpPort,
			Speed:         physic.Frequency(tmpSpeedKHz) * physic.KiloHertz,
			ResetPin:      tmpResetPin,
			BootPin:       tmpBootPin,
			ChipSelectPin: tmpChipSelectPin,
		})
	case "uart":
		if tmpPort == "" {
			return nil, fmt.Errorf("no serial port given, use --port (see 'cc13flash ports')")
		}
		return transport.OpenUART(transport.UARTConfig{Port: tmpPort, BaudRate: tmpBaudRate})
	case "sim":
		sim := cc13xx.NewSimulator(cc13xx.FamilyCC13x0)
		sim.BootLevel = cc13xx.Level(tmpBootActiveHigh)
		log.Warn("using simulated device, nothing is written to hardware")
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown transport '%s', use spi, uart or sim", tmpTransport)
	}
}

// withSession links to the bootloader and hands the session to fn. Ctrl-C
// cancels the context.
func withSession(fn func(ctx context.Context, sess *cc13xx.Session) error, opts ...cc13xx.Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t, err := openTransport()
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Println("Resetting target into bootloader mode ...")
	sess, err := cc13xx.AcquireLink(ctx, t, append(linkOptions(), opts...)...)
	if err != nil {
		return err
	}
	fmt.Println("... bootloader answered")
	return fn(ctx, sess)
}
