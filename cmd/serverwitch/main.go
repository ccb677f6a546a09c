package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/serverwitch/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		if !cli.Silent(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
