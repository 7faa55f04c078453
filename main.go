package main

import (
	"os"

	"github.com/theapemachine/mnemos/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
