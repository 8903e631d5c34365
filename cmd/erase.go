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
	"github.com/spf13/cobra"
)

var (
	tmpEraseAddress uint32
	tmpEraseLength  uint32
	tmpEraseAll     bool
)

// eraseCmd represents the erase command
var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase flash sectors or the whole flash bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tmpEraseAll && tmpEraseLength == 0 {
			return fmt.Errorf("either --all or --length is required")
		}
		return withSession(func(ctx context.Context, sess *cc13xx.Session) error {
			if tmpEraseAll {
				fmt.Println("Erasing flash bank ...")
				if err := sess.EraseAll(ctx); err != nil {
					return err
				}
			} else {
				fmt.Printf("Erasing sectors covering %#08x-%#08x ...\n", tmpEraseAddress, tmpEraseAddress+tmpEraseLength)
				if err := sess.Erase(ctx, tmpEraseAddress, tmpEraseLength); err != nil {
					return err
				}
			}
			fmt.Println(okStyle.Render("Erase done"))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	eraseCmd.Flags().Uint32VarP(&tmpEraseAddress, "address", "a", cc13xx.FlashBase, "first address to erase")
	eraseCmd.Flags().Uint32VarP(&tmpEraseLength, "length", "l", 0, "number of bytes to erase, rounded to whole sectors")
	eraseCmd.Flags().BoolVar(&tmpEraseAll, "all", false, "erase the whole flash bank")
}
