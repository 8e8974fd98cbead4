package main

import (
	"fmt"
	"os"

	"github.com/concordia-cash/go-concordia/cmd/concordia/launcher"
)

func main() {
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
