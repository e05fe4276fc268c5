package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"sharedcal/config"
	"sharedcal/core/appbootstrap"
	"sharedcal/core/utils"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sharedcal",
		Short:         "Shared calendar server with incident synchronization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (environment only when empty)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedAdminCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	return cmd
}

func (o *rootOptions) load() (*config.AppConfig, *utils.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := utils.NewLoggerWithOptions(utils.LoggerOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, logger, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return appbootstrap.Serve(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			db, err := appbootstrap.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Printf("migrations applied (%s)", db.Dialect())
			return nil
		},
	}
}

func newSeedAdminCommand(opts *rootOptions) *cobra.Command {
	var fullName string
	cmd := &cobra.Command{
		Use:   "seed-admin <username>",
		Short: "Create or promote an administrator and print a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.ToLower(strings.TrimSpace(args[0]))
			if username == "" {
				return fmt.Errorf("username is required")
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			token, err := appbootstrap.SeedAdmin(cmd.Context(), cfg, logger, username, fullName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name for a newly created user")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one incident calendar reconciliation pass and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			report, err := appbootstrap.Reconcile(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
