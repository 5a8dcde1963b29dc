package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"CandleSense/internal/di"
	"CandleSense/pkg/config"
	"CandleSense/pkg/util"
)

func predictCmd(open opener) *cobra.Command {
	var (
		symbol string
		window int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run one prediction cycle over the stored candles of a symbol",
		Example: `  candlectl predict --symbol EURUSD
  candlectl predict --symbol EURUSD --window 80`,
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			sym := util.NormalizeSymbol(symbol)
			candles, err := rt.Engine.LoadWindow(cmd.Context(), sym, window)
			if err != nil {
				return err
			}
			out, err := rt.Engine.Predict(cmd.Context(), sym, candles)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		}),
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol to predict")
	cmd.Flags().IntVarP(&window, "window", "w", 0, "candles to load (0 uses the configured window)")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func validateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Resolve matured predictions against stored candles",
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			sum, err := rt.Loop.Validate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		}),
	}
}

func retrainCmd(open opener) *cobra.Command {
	var cycle bool
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Retrain the model now, or run a full learning cycle with --cycle",
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			if cycle {
				rep, err := rt.Loop.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			}
			res, err := rt.Trainer.Retrain(cmd.Context(), time.Now().UTC())
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&cycle, "cycle", false, "validate first and retrain only when enough new outcomes exist")
	return cmd
}

func statsCmd(open opener) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print store counts and model status",
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			st, err := rt.Reporter.Stats(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}),
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this time (RFC3339 or unix seconds/millis)")
	return cmd
}

func performanceCmd(open opener) *cobra.Command {
	var (
		symbol string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Summarise validated predictions over recent days",
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			if days < 1 || days > 90 {
				return fmt.Errorf("--days must be between 1 and 90")
			}
			sym := ""
			if symbol != "" {
				sym = util.NormalizeSymbol(symbol)
			}
			perf, err := rt.Engine.Performance(cmd.Context(), sym, days)
			if err != nil {
				return err
			}
			return printJSON(cmd, perf)
		}),
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "restrict to one symbol")
	cmd.Flags().IntVarP(&days, "days", "d", 7, "lookback in days")
	return cmd
}

func retentionCmd(open opener) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Delete candles and predictions older than the retention window",
		Example: `  candlectl retention
  candlectl retention --at 2024-10-01T00:00:00Z`,
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *di.Runtime) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			rep, err := rt.Retention.Run(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		}),
	}
	cmd.Flags().StringVar(&at, "at", "", "measure the retention window back from this time instead of now")
	return cmd
}

// parseAt reads an --at flag; empty means now.
func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("--at: cannot parse %q", s)
	}
	return t, nil
}

// configCmd prints the effective configuration after defaults and environment overrides.
func configCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*path)
			if err != nil {
				return err
			}
			cfg.ClickHouse.Password = redact(cfg.ClickHouse.Password)
			cfg.Redis.Password = redact(cfg.Redis.Password)
			cfg.Feed.APIKey = redact(cfg.Feed.APIKey)
			cfg.Enrichment.APIKey = redact(cfg.Enrichment.APIKey)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
