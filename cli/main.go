package main

import (
	"os"

	"github.com/kunalsinghdadhwal/axi-vid/cli/cmd"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init(os.Stderr)
	cmd.Execute()
}
