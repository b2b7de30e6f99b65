/*
netwatch - network-device availability monitor
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/desertwitch/netwatch/internal/xlog"
)

// Version is the program version as filled in by the Makefile.
var Version string

// newRootCmd returns the primary [cobra.Command] pointer for the program.
func newRootCmd(ctx context.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "netwatch",
		Short:             "Network-device availability monitor",
		Version:           Version,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	serveCmd := newServeCmd(ctx)
	checkCmd := newCheckCmd()

	rootCmd.AddCommand(serveCmd, checkCmd)

	return rootCmd
}

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer xlog.RecoverGoPanic("signals", nil)
		<-sigs
		cancel()
	}()

	rootCmd := newRootCmd(ctx)
	if err := rootCmd.Execute(); err != nil {
		exitCode = 1
	}
}
