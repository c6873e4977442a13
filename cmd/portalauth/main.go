package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/portalauth/cmd/portalauth/cmd"
)

func main() {
	memguard.CatchInterrupt()
	err := cmd.Execute()
	memguard.Purge()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
