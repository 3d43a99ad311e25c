package main

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-auth-gate/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
	verbose    bool
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "JWT bearer authentication service with token admission checks",
		Long: `gate issues and verifies JWT bearer tokens. Every verified token is
admitted only if its user exists, is active and its security stamp is current.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before reading GATE_ variables")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// NewConfigCmd prints the resolved configuration without secrets
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cmd.Println(config.Dump(cfg))
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(
		config.WithConfigFile(configFile),
		config.WithEnvFile(envFile),
	)
}

func newLogger() *glog.BaseLogger {
	level := glog.Info
	if verbose {
		level = glog.Debug
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("gate"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}
