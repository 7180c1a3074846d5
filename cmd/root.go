package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/echonote-api/pkg/config"
	"github.com/killallgit/echonote-api/pkg/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "echonote-api",
	Short: "EchoNote meeting transcription server",
	Long: `EchoNote API - transcription and summarization for recorded meetings

Uploaded recordings are split into chunks, transcribed with speaker
diarization, stitched back into one transcript and summarized.

Features:
  • Silence aware chunking with bounded parallel recognition
  • Speaker labels kept consistent across chunks
  • Meeting summaries with action items
  • Live job progress over WebSocket
  • Monthly usage accounting per user`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		logging.Setup(level, jsonLogs)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// loadConfig reads settings for the commands that need them. Version and
// help never call it.
func loadConfig() (*config.Config, error) {
	if err := config.Init(); err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
