package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/server"
)

var (
	portFlag     string
	logLevelFlag string
	envFileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "relaychat",
	Short: "WebSocket message relay with a currency-rate command",
	Long: `relaychat relays plain text messages between WebSocket clients.
A client sending "exchange N" receives the latest currency rates instead,
and every such command is recorded in the audit log.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Optional .env file (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig() (*server.Config, error) {
	var files []string
	if envFileFlag != "" {
		files = append(files, envFileFlag)
	}

	cfg, err := server.LoadConfig(files...)
	if err != nil {
		return nil, err
	}
	if portFlag != "" {
		cfg.Port = portFlag
		if !strings.Contains(cfg.Port, ":") {
			cfg.Port = ":" + cfg.Port
		}
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exitCode(err error) int {
	if errors.Is(err, server.ErrInvalidConfig) {
		return exitConfig
	}
	return exitRuntime
}
