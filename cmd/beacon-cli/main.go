package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/beacon/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand(os.Stdout)

	if err := rootCmd.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
