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
	"fmt"
	"os"
	"time"

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/mame82/cc13flash/transport"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose   bool
	logFormat string

	tmpTransport      string
	tmpPort           string
	tmpBaudRate       int
	tmpSpeedKHz       int
	tmpResetPin       string
	tmpBootPin        string
	tmpChipSelectPin  string
	tmpBootActiveHigh bool
	tmpAttempts       int
	tmpLinkAttempts   int
	tmpTimeout        time.Duration
	tmpEraseTimeout   time.Duration
	tmpSectorSize     uint32
	tmpFlashSize      uint32
)

var rootCmd = &cobra.Command{
	Use:   "cc13flash",
	Short: "Flash TI CC13xx/CC26xx devices through their ROM serial bootloader",
	Long: `cc13flash resets a TI CC13xx/CC26xx device into its ROM serial bootloader
(pin triggered backdoor) and programs, verifies and starts firmware images
over SPI or UART.

Examples:
  cc13flash ports                                            # list probes and serial ports
  cc13flash info --transport sim                             # identify the simulated chip
  cc13flash flash firmware.hex --reset-pin GPIO17 --boot-pin GPIO27
  cc13flash flash app.bin --transport uart --port /dev/ttyUSB0 --address 0x0`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func setupLogging() error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	switch logFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format '%s', use text or json", logFormat)
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output, logs every packet")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")

	pf.StringVarP(&tmpTransport, "transport", "t", "spi", "transport to the bootloader: spi, uart or sim")
	pf.StringVarP(&tmpPort, "port", "p", "", "SPI port (e.g. /dev/spidev0.0) or serial device (e.g. /dev/ttyUSB0)")
	pf.IntVar(&tmpBaudRate, "baud", transport.DefaultBaudRate, "UART baud rate")
	pf.IntVar(&tmpSpeedKHz, "speed", 4000, "SPI clock in kHz")
	pf.StringVar(&tmpResetPin, "reset-pin", "", "GPIO driving the target reset line (SPI)")
	pf.StringVar(&tmpBootPin, "boot-pin", "", "GPIO driving the bootloader backdoor pin (SPI)")
	pf.StringVar(&tmpChipSelectPin, "cs-pin", "", "GPIO used as chip select, if not driven by the SPI controller")
	pf.BoolVar(&tmpBootActiveHigh, "boot-active-high", false, "backdoor pin is active high")
	pf.IntVar(&tmpAttempts, "attempts", 3, "attempts per bootloader command")
	pf.IntVar(&tmpLinkAttempts, "link-attempts", 5, "pings before giving up on bootloader entry")
	pf.DurationVar(&tmpTimeout, "timeout", 500*time.Millisecond, "timeout per bootloader command")
	pf.DurationVar(&tmpEraseTimeout, "erase-timeout", 5*time.Second, "timeout for erase and CRC commands")
	pf.Uint32Var(&tmpSectorSize, "sector-size", 0, "override flash sector size in bytes (0: detect)")
	pf.Uint32Var(&tmpFlashSize, "flash-size", 0, "override flash size in bytes (0: detect)")
}

// linkOptions maps the global flags onto session options.
func linkOptions() []cc13xx.Option {
	return []cc13xx.Option{
		cc13xx.WithLogger(log.StandardLogger()),
		cc13xx.WithRetries(tmpAttempts),
		cc13xx.WithTimeout(tmpTimeout, tmpEraseTimeout),
		cc13xx.WithLinkAttempts(tmpLinkAttempts, 50*time.Millisecond),
		cc13xx.WithBootActiveLow(!tmpBootActiveHigh),
		cc13xx.WithAutoBaud(tmpTransport == "uart"),
		cc13xx.WithClockIdle(tmpTransport != "uart"),
		cc13xx.WithSectorSize(tmpSectorSize),
		cc13xx.WithFlashSize(tmpFlashSize),
	}
}
