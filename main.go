package main

import (
	"os"

	"github.com/mailwright/mailwright/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
