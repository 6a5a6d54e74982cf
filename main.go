package main

import (
	"os"

	"github.com/Manu343726/debugedit/cmd/debugedit"
)

func main() {
	if err := debugedit.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
