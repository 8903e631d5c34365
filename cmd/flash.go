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

	"github.com/mame82/cc13flash/cc13xx"
	"github.com/mame82/cc13flash/firmware"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpFlashAddress  uint32
	tmpBankErase     bool
	tmpNoRun         bool
	tmpSkipUnchanged bool
	tmpForceCCFG     bool
	tmpChunkSize     int
	tmpShowProgress  bool
)

func newPhaseBar(p cc13xx.Progress) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("%-8s", p.Phase.String())),
		progressbar.OptionShowCount(),
	}
	if p.Phase != cc13xx.PhaseErase {
		opts = append(opts, progressbar.OptionShowBytes(true))
	}
	return progressbar.NewOptions(p.Total, opts...)
}

// FlashFirmware programs fw and reports progress per phase.
func FlashFirmware(ctx context.Context, sess *cc13xx.Session, fw *firmware.Firmware) error {
	if tmpSkipUnchanged {
		same, err := sess.Matches(ctx, fw.Image)
		if err != nil {
			return err
		}
		if same {
			fmt.Println(okStyle.Render("Device already runs this firmware, nothing to flash"))
			return nil
		}
		fmt.Println("Device content differs, flashing ...")
	}

	run := sess.Start(fw.Image)
	var bar *progressbar.ProgressBar
	phase := cc13xx.Phase(-1)
	for p := range run.Progress(ctx) {
		if !tmpShowProgress {
			log.Debug(p.String())
			continue
		}
		if p.Phase != phase {
			if bar != nil {
				bar.Finish()
				fmt.Println()
			}
			bar = newPhaseBar(p)
			phase = p.Phase
		}
		bar.Set(p.Done)
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err := run.Err(); err != nil {
		return err
	}
	if plan := run.Plan(); plan != nil {
		fmt.Printf("%d bytes written in %d chunks, %d sector(s) erased\n", plan.TotalBytes, plan.Chunks(), len(plan.Sectors()))
	}
	fmt.Println(okStyle.Render("Flash verified"))
	return nil
}

// flashCmd represents the flash command
var flashCmd = &cobra.Command{
	Use:   "flash <firmware file>",
	Short: "Flash a firmware image (Intel HEX, ELF or raw binary) and start it",
	Long: `Erases the sectors covered by the image, writes it, verifies every written
range against the CRC32 computed by the device and resets the device into the
new application.

Raw binaries are placed at --address, HEX and ELF images carry their own
addresses. Segments located in SRAM are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := firmware.Load(args[0], tmpFlashAddress)
		if err != nil {
			return err
		}
		fmt.Print(fw.String())

		return withSession(func(ctx context.Context, sess *cc13xx.Session) error {
			info, err := sess.ChipInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Println(info.String())

			if err := FlashFirmware(ctx, sess, fw); err != nil {
				return err
			}
			if tmpNoRun {
				return nil
			}
			if err := sess.Run(ctx); err != nil {
				return err
			}
			fmt.Println("Device reset into application")
			return nil
		},
			cc13xx.WithBankErase(tmpBankErase),
			cc13xx.WithCCFGCheck(!tmpForceCCFG),
			cc13xx.WithChunkSize(tmpChunkSize),
		)
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().Uint32VarP(&tmpFlashAddress, "address", "a", cc13xx.FlashBase, "flash address for raw binary images")
	flashCmd.Flags().BoolVar(&tmpBankErase, "bank-erase", false, "erase the whole flash bank instead of the covered sectors")
	flashCmd.Flags().BoolVar(&tmpNoRun, "no-run", false, "stay in the bootloader after flashing")
	flashCmd.Flags().BoolVar(&tmpSkipUnchanged, "skip-unchanged", false, "do nothing if the device already holds the image")
	flashCmd.Flags().BoolVar(&tmpForceCCFG, "force", false, "flash even if the image CCFG disables the bootloader backdoor")
	flashCmd.Flags().IntVar(&tmpChunkSize, "chunk-size", cc13xx.MaxSendDataLength, "bytes per SEND_DATA packet")
	flashCmd.Flags().BoolVar(&tmpShowProgress, "progress", true, "show progress bars")
}
