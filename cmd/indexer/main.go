// Command indexer mirrors loan protocol accounts into PostgreSQL.
//
//	indexer serve      webhook ingress, read API and optional periodic reconcile
//	indexer listen     live websocket source feeding the same pipeline
//	indexer reconcile  replay the skip journal and refresh every account
//	indexer migrate    apply embedded PostgreSQL and ClickHouse migrations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dexloan-indexer/internal/config"
	"dexloan-indexer/internal/logging"
)

// CLI is the Cobra-based command-line interface.
type CLI struct {
	root  *cobra.Command
	viper *viper.Viper

	configFile  string
	development bool

	config *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := NewCLI()
	if err := cli.root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// NewCLI sets up the CLI.
func NewCLI() *CLI {
	cli := &CLI{viper: config.New()}
	cli.root = &cobra.Command{
		Use:           "indexer",
		Short:         "Loan protocol ledger indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cli.viper, cli.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log, cli.development)
			if err != nil {
				return err
			}
			cli.config = cfg
			cli.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.logger != nil {
				_ = cli.logger.Sync()
			}
		},
	}

	flags := cli.root.PersistentFlags()
	flags.StringVar(&cli.configFile, "config", "", "config file (yaml, toml or json)")
	flags.BoolVar(&cli.development, "dev", false, "development logging; invariant violations panic")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("memory", false, "use in-memory storage instead of PostgreSQL")
	cli.bind("log.level", flags.Lookup("log-level"))
	cli.bind("storage.use_memory", flags.Lookup("memory"))

	cli.root.AddCommand(
		cli.serveCommand(),
		cli.listenCommand(),
		cli.reconcileCommand(),
		cli.migrateCommand(),
	)
	return cli
}

// bind makes a flag override the config key when it is set explicitly.
func (cli *CLI) bind(key string, flag *pflag.Flag) {
	if err := cli.viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
