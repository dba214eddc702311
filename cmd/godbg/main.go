package main

import (
	"os"

	"github.com/debugworks/godbg/cmd/godbg/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
