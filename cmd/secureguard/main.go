package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/app"
	"github.com/kalambet/secureguard/internal/config"
	"github.com/kalambet/secureguard/internal/knowledge"
	"github.com/kalambet/secureguard/internal/logging"
)

var version = "dev"

var (
	noColor        bool
	skipModelCheck bool
)

var rootCmd = &cobra.Command{
	Use:   "secureguard",
	Short: "Cybersecurity assistant answering from a local knowledge base",
	Long: `SecureGuard answers cybersecurity questions from a local knowledge base
and shows how closely each retrieved passage matched the question.

Running without a subcommand starts the chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
	RunE: runChat,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "secureguard version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&skipModelCheck, "skip-model-check", false, "do not check engine reachability or pull models")
	addChatFlags(rootCmd)

	rootCmd.AddCommand(chatCmd, ingestCmd, recallCmd, statusCmd, serveCmd, mcpCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// setup loads configuration and builds the logger. Interactive commands own
// the terminal, so only non-interactive ones mirror warnings to stderr.
func setup(interactive bool) (config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	opts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if !interactive {
		opts.Console = errOut
	}
	log, flush, err := logging.New(opts)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, log, flush, nil
}

// bootstrap brings the service up, reporting progress on stderr.
func bootstrap(ctx context.Context, cfg config.Config, log *zap.Logger, rebuild bool) (*app.App, error) {
	printStep("Starting %s engine", cfg.Engine.Backend)
	a, err := app.Bootstrap(ctx, cfg, log, app.Options{
		Rebuild:        rebuild,
		SkipModelCheck: skipModelCheck,
		Progress:       errOut,
		OnDocument: func(src knowledge.Source, chunks int) {
			printStep("Embedded %s (%d chunks)", src.Path, chunks)
		},
	})
	if err != nil {
		return nil, err
	}
	if a.Base.Built {
		printSuccess("Built knowledge base: %d documents, %d chunks", a.Base.Stats.Documents, a.Base.Stats.Chunks)
	} else {
		printSuccess("Loaded knowledge base: %d documents, %d chunks", a.Base.Stats.Documents, a.Base.Stats.Chunks)
	}
	return a, nil
}
