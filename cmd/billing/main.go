package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/paykit/internal/app"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/db"
	"github.com/templui/paykit/internal/logger"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	logger.Init(logger.Options{
		Development: cfg.IsDevelopment(),
		SentryDSN:   cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Output:      os.Stderr,
	})
	defer logger.Flush()

	err := newRootCmd(cfg).Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Flush()
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "billing",
		Short:         "Billing operations: migrations, users, tokens and subscriptions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(cfg))
	rootCmd.AddCommand(userCmd(cfg))
	rootCmd.AddCommand(tokenCmd(cfg))
	rootCmd.AddCommand(subscriptionCmd(cfg))

	return rootCmd
}

// openDB connects without running migrations.
func openDB(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

// withApp builds the full application, including the payment provider.
func withApp(cfg *config.Config, fn func(a *app.App) error) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
