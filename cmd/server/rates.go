package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/rates"
	"github.com/Tyrowin/relaychat/internal/server"
)

var ratesCmd = &cobra.Command{
	Use:   "rates DAYS",
	Short: "Print EUR and USD rates for the last DAYS days as JSON",
	Long: `Fetch the EUR and USD cash rates for each of the last DAYS days,
newest first. DAYS is capped by RATE_MAX_DAYS (default 10). Days or
currencies the API could not provide are printed as null.`,
	Args: cobra.ExactArgs(1),
	RunE: runRates,
}

func init() {
	rootCmd.AddCommand(ratesCmd)
}

func runRates(cmd *cobra.Command, args []string) error {
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 1 {
		return fmt.Errorf("%w: invalid number of days %q", server.ErrInvalidConfig, args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := server.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if days > cfg.Rates.MaxDays {
		logger.Warn("number of days capped", "requested", days, "max_days", cfg.Rates.MaxDays)
	}

	client := rates.NewClient(
		rates.WithArchiveURL(cfg.Rates.ArchiveURL),
		rates.WithMaxDays(cfg.Rates.MaxDays),
		rates.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Rates.Timeout*time.Duration(2*cfg.Rates.MaxDays))
	defer cancel()

	report, err := client.History(ctx, days)
	if err != nil {
		return fmt.Errorf("fetch rate history: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
