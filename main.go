package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/picpocket/picpocket/cmd"
	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/cli"
)

// buildDate and version are set at link time
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliCtx := cli.NewContext()
	rootCmd := cmd.RootCommand(cliCtx, &buildinfo.Context{Version: version, BuildDate: buildDate})

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := cliCtx.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return cli.ExitCode(err)
}
