package main

import (
	"os"

	"github.com/solatis/envboot/cmd/envboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
