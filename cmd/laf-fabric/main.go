package main

import (
	"fmt"
	"os"

	"github.com/Dans-labs/laf-fabric/internal/operations"
)

func main() {
	app := operations.BuildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "laf-fabric: %v\n", err)
		os.Exit(1)
	}
}
