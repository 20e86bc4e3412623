package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"OBScan/internal/di"
	"OBScan/internal/domain/repository"
	"OBScan/internal/usecase"

	"github.com/spf13/cobra"
)

// scanCmd runs one scan with the configured interactive thresholds and
// prints the report.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single order block scan and print the report as JSON",
	Long: `Run a single scan over the top instruments by quote volume and print the
report to stdout. Detections are routed to the configured backend as usual.

Examples:
  obscan scan
  obscan scan --interval 1h --limit 20
  obscan scan --scheduled --timeout 5m`,
	RunE: runScan,
}

var (
	scanInterval  string
	scanLimit     int
	scanScheduled bool
	scanTimeout   time.Duration
	scanFoundOnly bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanInterval, "interval", "", "candle interval (defaults to scan.default_timeframe)")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "instruments to scan (defaults to scan.premium_limit)")
	scanCmd.Flags().BoolVar(&scanScheduled, "scheduled", false, "use the stricter scheduled thresholds")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Minute, "overall scan timeout")
	scanCmd.Flags().BoolVar(&scanFoundOnly, "found-only", false, "print only instruments with an order block")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the report
	cfg.Logging.Output = "stderr"

	scanner, cleanup, err := di.InitializeScanner(cfg)
	if err != nil {
		return fmt.Errorf("scanner initialization failed: %w", err)
	}
	defer cleanup()

	params := usecase.ScanParams{
		Timeframe:   repository.Timeframe(cfg.Scan.DefaultTimeframe),
		Limit:       cfg.Scan.PremiumLimit,
		CandleLimit: cfg.Scan.CandleLimit,
		Config:      di.DetectorConfig(cfg.Scan.Detector),
	}
	if scanInterval != "" {
		params.Timeframe = repository.Timeframe(scanInterval)
	}
	if scanLimit > 0 {
		params.Limit = scanLimit
	}
	if scanScheduled {
		params.Config = di.DetectorConfig(cfg.Scan.Scheduled)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	report, err := scanner.Scan(ctx, params)
	if err != nil {
		return err
	}
	if scanFoundOnly {
		found := report.Results[:0]
		for _, r := range report.Results {
			if r.Found() {
				found = append(found, r)
			}
		}
		report.Results = found
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
