package cli

import (
	"fmt"
	"os"
	gosync "sync"
)

var (
	cliInitialized bool
	cliInitMutex   gosync.Mutex
)

// ExecuteWithErrorCode runs the root command and returns an exit code
func ExecuteWithErrorCode(args []string) int {
	RootCmd.SetArgs(args)

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// InitCLI initializes the CLI framework with all commands
func InitCLI() {
	cliInitMutex.Lock()
	defer cliInitMutex.Unlock()

	if cliInitialized {
		return
	}

	InitRoot()

	// Commands are auto-registered via their init() functions

	cliInitialized = true
}
