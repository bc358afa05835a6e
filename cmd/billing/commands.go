package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/paykit/internal/app"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/db"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/service"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.RunMigrations(database.DB, cfg.DBDriver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.MigrateDown(database.DB, cfg.DBDriver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			version, err := db.Version(database.DB, cfg.DBDriver)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	})

	return cmd
}

func userCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			users := service.NewUserService(repository.NewStore(database))
			user, err := users.Create(cmd.Context(), email)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address of the new user")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	return cmd
}

func tokenCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token for a user (sent as auth_token cookie or Bearer header)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			users := service.NewUserService(repository.NewStore(database))
			user, err := users.ByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			auth := service.NewAuthService(cfg.JWTSecret, cfg.IsProduction(), cfg.JWTExpiry)
			token, err := auth.GenerateJWT(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func subscriptionCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Inspect and manage subscriptions on the active provider",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider-subscription-id>",
		Short: "Fetch a subscription from the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app.App) error {
				data, err := a.BillingService.ProviderSubscription(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), data)
			})
		},
	})

	var immediately bool
	cancel := &cobra.Command{
		Use:   "cancel <provider-subscription-id>",
		Short: "Cancel a subscription and sync the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app.App) error {
				err := a.PaymentProvider.CancelSubscription(cmd.Context(), args[0], !immediately)
				if err != nil {
					return fmt.Errorf("failed to cancel subscription: %w", err)
				}
				return syncAndPrint(cmd, a, args[0])
			})
		},
	}
	cancel.Flags().BoolVar(&immediately, "now", false, "cancel immediately instead of at period end")
	cmd.AddCommand(cancel)

	cmd.AddCommand(&cobra.Command{
		Use:   "sync <provider-subscription-id>",
		Short: "Pull the provider's state into the local database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app.App) error {
				return syncAndPrint(cmd, a, args[0])
			})
		},
	})

	return cmd
}

var errUntracked = errors.New("subscription is not linked to a known user")

func syncAndPrint(cmd *cobra.Command, a *app.App, id string) error {
	start := time.Now()
	sub, err := a.BillingService.SyncSubscription(cmd.Context(), id)
	if err != nil {
		return err
	}
	if sub == nil {
		return errUntracked
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "synced in %s\n", time.Since(start).Round(time.Millisecond))
	return printJSON(cmd.OutOrStdout(), sub)
}
