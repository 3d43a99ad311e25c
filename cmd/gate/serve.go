package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-auth-gate/app"
	"github.com/goliatone/go-auth-gate/config"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lgr := newLogger()
	lgr.GetLogger("config").Debug("configuration loaded", "config", config.Dump(cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lgr.GetLogger("auth:gate"))
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}
