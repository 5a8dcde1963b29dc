package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"CandleSense/internal/di"
	"CandleSense/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "candlectl",
		Short:        "Operate a CandleSense deployment from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")

	open := func() (*di.Runtime, func(), error) {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		return di.InitializeRuntime(cfg)
	}

	root.AddCommand(
		predictCmd(open),
		validateCmd(open),
		retrainCmd(open),
		statsCmd(open),
		performanceCmd(open),
		retentionCmd(open),
		configCmd(&configPath),
	)
	return root
}

type opener func() (*di.Runtime, func(), error)

// withRuntime builds the runtime for one command and tears it down afterwards.
func withRuntime(open opener, fn func(cmd *cobra.Command, rt *di.Runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, cleanup, err := open()
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(cmd, rt)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
