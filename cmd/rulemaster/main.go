// Command rulemaster syncs a mailbox into a local SQLite store and applies
// user-defined rules to the stored messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/binaryash/gmail-rulemaster/internal/app"
	"github.com/binaryash/gmail-rulemaster/internal/logging"
	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *model.AppConfig
	app        *app.App
	log        zerolog.Logger
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "rulemaster",
		Short:         "Apply rules to your mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", model.DefaultConfigPath(), "path to the configuration file")

	root.AddCommand(
		c.syncCmd(),
		c.processCmd(),
		c.runCmd(),
		c.watchCmd(),
		c.statsCmd(),
		c.rulesCmd(),
		c.actionsCmd(),
		c.credentialsCmd(),
	)
	return root
}

// open loads the configuration, builds the logger and opens the app.
func (c *cli) open() error {
	cfg, err := model.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = logging.New(cfg.Log, os.Stderr)

	a, err := app.New(cfg, c.log)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}
