package main

import "github.com/mame82/cc13flash/cmd"

func main() {
	cmd.Execute()
}
