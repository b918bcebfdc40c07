// ReelTransfer - transfer orchestration for camera-card offloads.
package main

import (
	"os"

	"github.com/reelworks/reeltransfer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
