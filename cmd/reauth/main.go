package main

import (
	"os"

	reauthcmd "github.com/telekom/reauth/pkg/cmd"
)

func main() {
	root := reauthcmd.NewRootCommand(reauthcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
