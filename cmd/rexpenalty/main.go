package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "rexpenalty",
		Short: "✈  Reissue and refund penalty calculator",
		Long: `rexpenalty computes the change and refund penalties of a ticket from
its fare rules, either for a concrete repricing or as a maximum-fee estimate.

Scenarios describe the ticket, the repriced itinerary and, optionally, the rule
records themselves. Rules can also be imported into a local SQLite store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/rexpenalty/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().String("database", "", "rule store path (default: $HOME/.local/share/rexpenalty/rules.db)")

	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", root.PersistentFlags().Lookup("database"))

	root.AddCommand(migrateCmd())
	root.AddCommand(quoteCmd())
	root.AddCommand(estimateCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(versionCmd())

	return root
}

func main() {
	// The batch command installs its own interrupt handler; other commands
	// finish quickly enough to be stopped by the default signal behavior.
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "rexpenalty"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REXPENALTY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := common.SetupLogger(viper.GetString("logging.level"), viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func databasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = "$HOME/.local/share/rexpenalty/rules.db"
	}
	return config.ExpandPath(path)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rexpenalty %s\n", version)
			return err
		},
	}
}
