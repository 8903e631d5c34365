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

	"github.com/mame82/cc13flash/transport"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List USB probes and serial ports usable as transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		probes, err := transport.Discover()
		if err != nil {
			log.WithError(err).Warn("USB enumeration failed")
		}
		fmt.Println(titleStyle.Render("USB probes"))
		for _, p := range probes {
			fmt.Println("  " + p.Label())
		}

		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Serial ports"))
		if len(ports) == 0 {
			fmt.Println("  none found")
		}
		for _, p := range ports {
			fmt.Println("  " + p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
