package main

import (
	"os"

	"github.com/rafaeljc/mimir/cmd/mimirctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
