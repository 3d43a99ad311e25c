package main

import (
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-auth-gate/app"
	"github.com/goliatone/go-auth-gate/container"
)

// NewTokenCmd creates the token subcommand.
func NewTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-name>",
		Short: "Issue a bearer token for an existing user",
		Long:  `Issue a bearer token for local testing. The user must exist and be active.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lgr := newLogger()
	a, err := app.New(cmd.Context(), cfg, lgr.GetLogger("auth:token"), app.WithoutMigrations())
	if err != nil {
		return err
	}
	defer a.Close()

	scope := a.Container().NewScope()
	defer scope.Close()

	auther, err := container.Resolve[*auth.Auther](scope, app.KeyAuthenticator)
	if err != nil {
		return err
	}

	token, err := auther.IssueFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	cmd.Println(token)
	return nil
}
