// Command xolex is the Xolex field client.
package main

import (
	"os"

	"github.com/xolex/xolex/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
