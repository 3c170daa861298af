package main

import (
	"os"

	"github.com/sheetvault/sheetvault/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
