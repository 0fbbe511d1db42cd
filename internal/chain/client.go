package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Options tunes RPC behavior.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// BatchSize splits open-ended log queries into block ranges of this size.
	// Zero issues every query as a single eth_getLogs call.
	BatchSize uint64
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options
	policy    retryPolicy
	logger    *zap.Logger

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options, logger *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
		policy:    newRetryPolicy(opts.MaxRetries, opts.RetryBackoff),
		logger:    logger,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retry(ctx, "chain_id", func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.retry(ctx, "block_number", func(ctx context.Context) error {
		var err error
		number, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return number, err
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	var header *types.Header
	err := c.retry(ctx, "header", func(ctx context.Context) error {
		var err error
		header, err = c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs runs an eth_getLogs query. With batching enabled, queries spanning
// more than BatchSize blocks are split and their results concatenated in block order.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if c.opts.BatchSize == 0 || q.BlockHash != nil {
		return c.filterLogs(ctx, q)
	}

	var latest uint64
	if q.ToBlock == nil {
		number, err := c.LatestBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		latest = number
	}
	batches, err := SplitQuery(q, latest, c.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	var out []types.Log
	for _, batch := range batches {
		logs, err := c.filterLogs(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, logs...)
	}
	return out, nil
}

func (c *Client) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.retry(ctx, "get_logs", func(ctx context.Context) error {
		var err error
		logs, err = c.ethClient.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.retry(ctx, "call", func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.policy.do(ctx, fn, func(n int, err error) {
		c.logger.Debug("rpc retry", zap.String("op", op), zap.Int("attempt", n), zap.Error(err))
	})
}
