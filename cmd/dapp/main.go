package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"physdapp/internal/logging"
)

func main() {
	logging.Configure()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("dapp stopped")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dapp",
		Short:         "Rollup adapter that drives a physics simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}
