package history

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdpHistory/internal/mcd"
	"cdpHistory/internal/model"
)

// Family is a group of logs queried and correlated together.
type Family int

const (
	FamilyOpen Family = iota
	FamilyManagerFrob
	FamilyVatFrob
	FamilyGive
)

type correlateFunc func(ctx context.Context, c *computation, logs []types.Log) ([]ranked, error)

type familySpec struct {
	event     mcd.Event
	correlate correlateFunc
}

var families = map[Family]familySpec{
	FamilyOpen:        {event: mcd.NewCdpEvent, correlate: correlateOpen},
	FamilyManagerFrob: {event: mcd.ManagerFrobEvent, correlate: correlateManagerFrob},
	FamilyVatFrob:     {event: mcd.VatFrobEvent, correlate: correlateVatFrob},
	FamilyGive:        {event: mcd.GiveEvent, correlate: correlateGive},
}

// familyOrder fixes the order results are flattened in before sorting.
var familyOrder = []Family{FamilyOpen, FamilyManagerFrob, FamilyVatFrob, FamilyGive}

func (f Family) String() string {
	switch f {
	case FamilyOpen:
		return "open"
	case FamilyManagerFrob:
		return "manager_frob"
	case FamilyVatFrob:
		return "vat_frob"
	case FamilyGive:
		return "give"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ranked pairs a record with its intra-block precedence until the merge.
type ranked struct {
	record model.EventRecord
	rank   int
}

func rank(record model.EventRecord) ranked {
	return ranked{record: record, rank: record.Kind.Precedence()}
}

func correlateOpen(_ context.Context, c *computation, logs []types.Log) ([]ranked, error) {
	out := make([]ranked, 0, len(logs))
	for _, log := range logs {
		if _, err := mcd.DecodeNewCdp(log); err != nil {
			return nil, err
		}
		out = append(out, rank(model.EventRecord{
			Kind:   model.KindOpen,
			Block:  log.BlockNumber,
			TxHash: log.TxHash,
			CdpID:  c.cdpID(),
			Ilk:    c.pos.Ilk,
		}))
	}
	return out, nil
}

func correlateGive(_ context.Context, c *computation, logs []types.Log) ([]ranked, error) {
	out := make([]ranked, 0, len(logs))
	for _, log := range logs {
		give, err := mcd.DecodeGive(log)
		if err != nil {
			return nil, err
		}
		kind := model.KindGive
		if c.contracts.Migration != zeroAddress && give.PrevOwner == c.contracts.Migration {
			kind = model.KindMigrate
		}
		out = append(out, rank(model.EventRecord{
			Kind:      kind,
			Block:     log.BlockNumber,
			TxHash:    log.TxHash,
			CdpID:     give.Cdp,
			Ilk:       c.pos.Ilk,
			PrevOwner: mcd.FormatAddress(give.PrevOwner),
			NewOwner:  mcd.FormatAddress(give.NewOwner),
		}))
	}
	return out, nil
}

// correlateVatFrob emits collateral moves. The debt delta is ignored: it is
// normalized debt and needs the ilk rate to mean anything.
func correlateVatFrob(_ context.Context, c *computation, logs []types.Log) ([]ranked, error) {
	out := make([]ranked, 0, len(logs))
	for _, log := range logs {
		frob, err := mcd.DecodeVatFrob(log)
		if err != nil {
			return nil, err
		}
		if frob.Dink.Sign() == 0 {
			continue
		}
		kind := model.KindDeposit
		if frob.Dink.Sign() < 0 {
			kind = model.KindWithdraw
		}
		amount := mcd.FromWad(new(big.Int).Abs(frob.Dink))
		out = append(out, rank(model.EventRecord{
			Kind:    kind,
			Block:   log.BlockNumber,
			TxHash:  log.TxHash,
			CdpID:   c.cdpID(),
			Ilk:     frob.Ilk,
			Gem:     c.pos.Gem,
			Adapter: mcd.FormatAddress(log.Address),
			Amount:  &amount,
		}))
	}
	return out, nil
}

type pendingFrob struct {
	log  types.Log
	frob mcd.ManagerFrob
}

// correlateManagerFrob pairs each non-zero manager frob with the DAI adapter
// moves made by the same proxy in the same block. The adapter log carries the
// authoritative wad amount.
func correlateManagerFrob(ctx context.Context, c *computation, logs []types.Log) ([]ranked, error) {
	pending := make([]pendingFrob, 0, len(logs))
	for _, log := range logs {
		frob, err := mcd.DecodeManagerFrob(log)
		if err != nil {
			return nil, err
		}
		if frob.Dart.Sign() == 0 {
			continue
		}
		pending = append(pending, pendingFrob{log: log, frob: frob})
	}
	if len(pending) == 0 {
		return nil, nil
	}

	matches := make([][]ranked, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range pending {
		g.Go(func() error {
			records, err := c.adapterMoves(gctx, p)
			if err != nil {
				return err
			}
			matches[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ranked
	for _, records := range matches {
		out = append(out, records...)
	}
	return out, nil
}

func (c *computation) adapterMoves(ctx context.Context, p pendingFrob) ([]ranked, error) {
	block := p.log.BlockNumber
	q := adapterQuery(c.contracts, p.frob.Dart, p.log.Topics[1], block)
	logs, err := c.logs.FilterLogs(ctx, q)
	if err != nil {
		return nil, &QueryError{Family: FamilyManagerFrob.String(), Block: block, Err: err}
	}
	logs = uniqueLogs(logs)
	if len(logs) == 0 {
		c.logger.Debug("no adapter move for frob",
			zap.Uint64("block", block),
			zap.String("tx_hash", p.log.TxHash.Hex()),
			zap.String("proxy", mcd.FormatAddress(p.frob.Caller)),
		)
		return nil, nil
	}

	kind := model.KindGenerate
	if p.frob.Dart.Sign() < 0 {
		kind = model.KindPayBack
	}

	out := make([]ranked, 0, len(logs))
	for _, log := range logs {
		move, err := mcd.DecodeDaiMove(log)
		if err != nil {
			return nil, err
		}
		amount := mcd.FromWad(move.Wad)
		out = append(out, rank(model.EventRecord{
			Kind:      kind,
			Block:     log.BlockNumber,
			TxHash:    log.TxHash,
			CdpID:     c.cdpID(),
			Ilk:       c.pos.Ilk,
			Adapter:   mcd.FormatAddress(move.Adapter),
			Proxy:     mcd.FormatAddress(move.Caller),
			Recipient: mcd.FormatAddress(move.Usr),
			Amount:    &amount,
		}))
	}
	return out, nil
}

// cdpID returns a fresh copy of the position id for a new record.
func (c *computation) cdpID() *big.Int {
	return new(big.Int).Set(c.pos.ID)
}

// uniqueLogs drops removed (reorged) logs and repeats of the same log.
func uniqueLogs(logs []types.Log) []types.Log {
	seen := make(map[string]struct{}, len(logs))
	out := make([]types.Log, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, log)
	}
	return out
}
