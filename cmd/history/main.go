package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"cdpHistory/internal/chain"
	"cdpHistory/internal/config"
	"cdpHistory/internal/history"
	"cdpHistory/internal/mcd"
	"cdpHistory/internal/model"
	"cdpHistory/internal/storage"
	"cdpHistory/internal/storage/postgres"
	"cdpHistory/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:          "history",
		Short:        "MakerDAO CDP action history",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the action history of one or more CDPs",
		RunE:  runHistory,
	}

	runCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	runCmd.Flags().StringSlice("cdp", nil, "CDP ids (comma-separated)")
	runCmd.Flags().String("ilk", "", "collateral type, skips on-chain lookup (single CDP only)")
	runCmd.Flags().String("gem", "", "collateral token symbol, defaults to the ilk prefix")
	runCmd.Flags().String("urn", "", "urn handler address, skips on-chain lookup (single CDP only)")
	runCmd.Flags().String("manager", config.DefaultManager, "DssCdpManager address")
	runCmd.Flags().String("vat", config.DefaultVat, "Vat address")
	runCmd.Flags().String("join-dai", config.DefaultJoinDai, "DAI join adapter address")
	runCmd.Flags().String("join-sai", config.DefaultJoinSai, "SAI join adapter address, empty to disable")
	runCmd.Flags().String("migration", config.DefaultMigration, "migration contract address")
	runCmd.Flags().Uint64("from", 0, "start block, 0 means chain default")
	runCmd.Flags().Int("concurrency", 8, "parallel lookups per history")
	runCmd.Flags().Uint64("batch-size", 0, "blocks per eth_getLogs call, 0 disables splitting")
	runCmd.Flags().String("out", storage.StdoutPath, "output JSONL path, - for stdout, empty to disable")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().Bool("trace", false, "export trace spans to stderr")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	contracts, err := cfg.Contracts()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{Export: cfg.Trace})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		BatchSize:    cfg.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	fromBlock := cfg.FromBlock
	if fromBlock == 0 {
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		fromBlock = history.StartBlock(chainID)
	}

	sinks, closeSinks, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	positions, err := resolvePositions(ctx, cfg, chainClient, contracts)
	if err != nil {
		return err
	}

	engine := history.New(history.Config{
		Contracts:   contracts,
		FromBlock:   fromBlock,
		Concurrency: cfg.Concurrency,
	}, chainClient, chainClient, logger)

	logger.Info("history start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("cdps", len(positions)),
		zap.Uint64("from", fromBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PostgresDSN != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(positionLimit(cfg.Concurrency, len(positions)))
	for _, pos := range positions {
		g.Go(func() error {
			records, err := engine.History(gctx, pos)
			if err != nil {
				return fmt.Errorf("cdp %s: %w", pos.Key(), err)
			}
			for _, sink := range sinks {
				if err := sink.PutHistory(gctx, pos, records); err != nil {
					return fmt.Errorf("write cdp %s: %w", pos.Key(), err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// positionLimit bounds how many histories run at once. Each history fans out
// further by the same concurrency inside the engine.
func positionLimit(concurrency, positions int) int {
	if concurrency <= 0 {
		concurrency = 1
	}
	if positions < concurrency {
		return max(positions, 1)
	}
	return concurrency
}

func resolvePositions(ctx context.Context, cfg config.Config, client *chain.Client, contracts model.Contracts) ([]model.Position, error) {
	positions := make([]model.Position, 0, len(cfg.CdpIDs))
	for _, raw := range cfg.CdpIDs {
		id, err := chain.ParseCdpID(raw)
		if err != nil {
			return nil, err
		}

		if cfg.Urn != "" {
			urn, err := chain.ParseAddress("urn", cfg.Urn)
			if err != nil {
				return nil, err
			}
			gem := cfg.Gem
			if gem == "" {
				gem = mcd.GemFromIlk(cfg.Ilk)
			}
			positions = append(positions, model.Position{ID: id, Ilk: cfg.Ilk, Gem: gem, Urn: urn})
			continue
		}

		pos, err := mcd.ResolvePosition(ctx, client, contracts.Manager, id, cfg.Gem)
		if err != nil {
			return nil, fmt.Errorf("resolve cdp %s: %w", id, err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func openSinks(ctx context.Context, cfg config.Config) ([]storage.Storage, func(), error) {
	var sinks []storage.Storage
	closeFn := func() {}

	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, store)
		closeFn = store.Close
	}
	return sinks, closeFn, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
