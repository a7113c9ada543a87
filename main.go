package main

import (
	"os"

	"github.com/adalundhe/steward/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
