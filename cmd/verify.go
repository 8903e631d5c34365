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
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var tmpVerifyAddress uint32

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <firmware file>",
	Short: "Compare a firmware image with the device flash using the device CRC32",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := firmware.Load(args[0], tmpVerifyAddress)
		if err != nil {
			return err
		}
		return withSession(func(ctx context.Context, sess *cc13xx.Session) error {
			err := sess.Verify(ctx, fw.Image)
			var vfe *cc13xx.VerifyFailedError
			if errors.As(err, &vfe) {
				fmt.Println(warnStyle.Render("Mismatch:"), vfe.Error())
			}
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("Device flash matches"), fw.Path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Uint32VarP(&tmpVerifyAddress, "address", "a", cc13xx.FlashBase, "flash address for raw binary images")
}
