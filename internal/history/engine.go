package history

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdpHistory/internal/model"
)

const defaultConcurrency = 8

var zeroAddress common.Address

// LogSource executes log queries. ethclient.Client satisfies it.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// BlockSource resolves block timestamps in seconds.
type BlockSource interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Config controls the history engine.
type Config struct {
	Contracts model.Contracts
	FromBlock uint64
	// Concurrency bounds parallel adapter lookups and timestamp resolution.
	Concurrency int
}

// Engine reconstructs CDP action histories from chain logs.
type Engine struct {
	cfg    Config
	logs   LogSource
	blocks BlockSource
	logger *zap.Logger
	cache  *ResultCache
	tracer trace.Tracer
}

// computation carries the state of one uncached history run.
type computation struct {
	pos         model.Position
	contracts   model.Contracts
	logs        LogSource
	logger      *zap.Logger
	timestamps  *TimestampResolver
	concurrency int
}

func New(cfg Config, logs LogSource, blocks BlockSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Engine{
		cfg:    cfg,
		logs:   logs,
		blocks: blocks,
		logger: logger,
		cache:  NewResultCache(),
		tracer: otel.Tracer("cdpHistory/history"),
	}
}

// History returns the actions of pos, newest first. Results are cached per
// CDP id for the lifetime of the engine, so repeated and concurrent calls
// for the same id share one computation.
func (e *Engine) History(ctx context.Context, pos model.Position) ([]model.EventRecord, error) {
	if err := e.validate(pos); err != nil {
		return nil, err
	}
	// The computation outlives this call; detach it from the caller's id.
	pos.ID = new(big.Int).Set(pos.ID)
	return e.cache.Get(ctx, pos.Key(), func(ctx context.Context) ([]model.EventRecord, error) {
		return e.compute(ctx, pos)
	})
}

func (e *Engine) validate(pos model.Position) error {
	if e.logs == nil {
		return fmt.Errorf("log source is nil")
	}
	if e.blocks == nil {
		return fmt.Errorf("block source is nil")
	}
	if pos.ID == nil || pos.ID.Sign() <= 0 {
		return fmt.Errorf("invalid cdp id: %v", pos.ID)
	}
	if pos.Urn == zeroAddress {
		return fmt.Errorf("cdp %s: urn address is required", pos.ID)
	}
	if e.cfg.Contracts.Manager == zeroAddress || e.cfg.Contracts.Vat == zeroAddress {
		return fmt.Errorf("manager and vat addresses are required")
	}
	if len(e.cfg.Contracts.DaiAdapters()) == 0 {
		return fmt.Errorf("at least one dai adapter address is required")
	}
	return nil
}

func (e *Engine) compute(ctx context.Context, pos model.Position) ([]model.EventRecord, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.History", trace.WithAttributes(
		attribute.String("cdp.id", pos.Key()),
		attribute.String("cdp.ilk", pos.Ilk),
		attribute.Int64("from_block", int64(e.cfg.FromBlock)),
	))
	defer span.End()

	c := &computation{
		pos:         pos,
		contracts:   e.cfg.Contracts,
		logs:        e.logs,
		logger:      e.logger.With(zap.String("cdp", pos.Key())),
		timestamps:  NewTimestampResolver(e.blocks),
		concurrency: e.cfg.Concurrency,
	}

	queries := Plan(pos, e.cfg.Contracts, e.cfg.FromBlock)
	perFamily := make([][]ranked, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			records, err := e.runQuery(gctx, c, q)
			if err != nil {
				return err
			}
			perFamily[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		e.logger.Warn("history failed", zap.String("cdp", pos.Key()), zap.Error(err))
		return nil, err
	}

	records, err := merge(ctx, perFamily, c.timestamps, c.concurrency)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("history failed", zap.String("cdp", pos.Key()), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	e.logger.Info("history complete",
		zap.String("cdp", pos.Key()),
		zap.String("ilk", pos.Ilk),
		zap.Int("records", len(records)),
		zap.Int("cached_cdps", e.cache.Len()),
	)
	return records, nil
}

func (e *Engine) runQuery(ctx context.Context, c *computation, q Query) ([]ranked, error) {
	ctx, span := e.tracer.Start(ctx, "history.query", trace.WithAttributes(
		attribute.String("family", q.Family.String()),
	))
	defer span.End()

	logs, err := c.logs.FilterLogs(ctx, q.Filter)
	if err != nil {
		span.RecordError(err)
		return nil, &QueryError{Family: q.Family.String(), Err: err}
	}
	logs = uniqueLogs(logs)

	fam, ok := families[q.Family]
	if !ok {
		return nil, fmt.Errorf("unknown family %s", q.Family)
	}
	records, err := fam.correlate(ctx, c, logs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("correlate %s: %w", q.Family, err)
	}

	c.logger.Debug("family correlated",
		zap.String("family", q.Family.String()),
		zap.Int("logs", len(logs)),
		zap.Int("records", len(records)),
	)
	span.SetAttributes(attribute.Int("logs", len(logs)), attribute.Int("records", len(records)))
	return records, nil
}
