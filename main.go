package main

import (
	"os"

	"github.com/conneroisu/trattoria/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
