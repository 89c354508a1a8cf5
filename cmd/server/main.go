package main

import (
	"fmt"
	"os"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relaychat: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}
