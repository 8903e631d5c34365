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
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mame82/cc13flash/cc13xx"
	"github.com/mame82/cc13flash/firmware"
	"github.com/spf13/cobra"
)

var tmpInfoImage string

func renderChipInfo(info cc13xx.ChipInfo) string {
	lines := []string{
		titleStyle.Render("Target"),
		kv("Chip ID", fmt.Sprintf("%#08x", info.ChipID)),
		kv("Device ID", fmt.Sprintf("%#08x", info.DeviceID)),
		kv("User ID", fmt.Sprintf("%#08x", info.UserID)),
		kv("Family", info.Family.String()),
		kv("Flash", fmt.Sprintf("%d KiB at %#08x", info.FlashSize/1024, info.FlashBase)),
		kv("Sector size", fmt.Sprintf("%d bytes", info.SectorSize)),
		kv("CCFG", fmt.Sprintf("%#08x", info.CCFGAddress)),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderImageInfo(fw *firmware.Firmware, info cc13xx.ChipInfo) string {
	lines := []string{
		titleStyle.Render("Image"),
		kv("File", fw.Path),
		kv("Format", fmt.Sprintf("%s (%s)", fw.Format, fw.MIME)),
		kv("Size", fmt.Sprintf("%d bytes", fw.Image.Size())),
	}
	for _, fp := range fw.Fingerprints() {
		lines = append(lines, kv("Segment", fmt.Sprintf("%#08x-%#08x CRC16 %#04x", fp.Address, fp.Address+uint32(fp.Length), fp.CRC)))
	}
	blc, err := cc13xx.CheckCCFG(fw.Image, info)
	switch {
	case blc == nil:
		lines = append(lines, kv("BL_CONFIG", "not part of image"))
	case err != nil:
		lines = append(lines, kv("BL_CONFIG", errStyle.Render(fmt.Sprintf("%#08x, locks out the bootloader", blc.Raw))))
	default:
		level := "low"
		if blc.ActiveHigh {
			level = "high"
		}
		lines = append(lines, kv("BL_CONFIG", okStyle.Render(fmt.Sprintf("%#08x, backdoor on DIO%d active %s", blc.Raw, blc.BackdoorPin, level))))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the target and optionally check an image against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		var fw *firmware.Firmware
		if tmpInfoImage != "" {
			var err error
			if fw, err = firmware.Load(tmpInfoImage, cc13xx.FlashBase); err != nil {
				return err
			}
		}
		return withSession(func(ctx context.Context, sess *cc13xx.Session) error {
			info, err := sess.ChipInfo(ctx)
			if err != nil {
				return err
			}
			boxes := []string{renderChipInfo(info)}
			if fw != nil {
				boxes = append(boxes, renderImageInfo(fw, info))
				same, err := sess.Matches(ctx, fw.Image)
				if err != nil {
					return err
				}
				if same {
					boxes = append(boxes, okStyle.Render("image matches device flash"))
				} else {
					boxes = append(boxes, warnStyle.Render("image differs from device flash"))
				}
			}
			fmt.Println(lipgloss.JoinVertical(lipgloss.Left, boxes...))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&tmpInfoImage, "image", "i", "", "firmware file to check against the target")
}
