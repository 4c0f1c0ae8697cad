// Package cmd holds the CLI entrypoints: plan-agent run for one-shot
// executions and plan-agent server for the streaming API.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plan-agent/cmd/server"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "plan-agent",
	Short: "LLM-planned agent execution engine",
	Long: `An agent engine that asks an LLM to compile a natural-language request
into a typed step plan, then executes the plan deterministically.

This tool provides:
- Plan synthesis with structural validation and one repair round
- A bounded plan interpreter with variable templating and conditions
- Built-in tools with JSON-schema argument validation
- A streaming API server with SSE event delivery`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Logging flags
	rootCmd.PersistentFlags().String("log-file", "", "log file path (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(server.ServerCmd)
}

// initConfig loads .env and environment variables.
func initConfig() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}
	viper.AutomaticEnv()
}
