package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/lattice/internal/cli"
	"github.com/roach88/lattice/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (ignored in production).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitCommandError
	}
	slog.SetDefault(cfg.Logger(os.Stderr))

	if err := cli.NewRootCommand(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
