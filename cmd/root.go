// Package cmd defines and implements the CLI commands for the bot
// executable.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dingtalk-bot",
		Short: "A DingTalk group robot with an LLM assistant.",
		Long: `dingtalk-bot receives DingTalk outgoing-webhook callbacks, answers
group commands, and runs LLM requests through a background worker pool so
replies never block the webhook.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, environment variables apply either way)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	development := os.Getenv("DINGTALK_LOGGING_DEVELOPMENT") == "true"
	if err := logging.InitLogger(development); err != nil {
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}
