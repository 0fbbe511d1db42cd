package history

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cdpHistory/internal/mcd"
	"cdpHistory/internal/model"
)

func newTestEngine(chain *fakeChain) *Engine {
	return New(Config{Contracts: testContracts, FromBlock: 1}, chain, chain, zap.NewNop())
}

func requireAmount(t *testing.T, record model.EventRecord, want int64) {
	t.Helper()
	require.NotNil(t, record.Amount, "%s should carry an amount", record.Kind)
	require.True(t, record.Amount.Equal(decimal.NewFromInt(want)), "amount %s != %d", record.Amount, want)
}

func kinds(records []model.EventRecord) []model.Kind {
	out := make([]model.Kind, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind)
	}
	return out
}

func TestHistoryEndToEnd(t *testing.T) {
	chain := &fakeChain{}
	chain.addOpen(100, 42)
	chain.addVatFrob(100, testUrn, wad(5))
	chain.addManagerFrob(105, 42, wad(3))
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.DaiJoin, 105, testProxy, wad(2))

	records, err := newTestEngine(chain).History(context.Background(), testPosition(42))
	require.NoError(t, err)
	require.Equal(t, []model.Kind{model.KindGenerate, model.KindDeposit, model.KindOpen}, kinds(records))

	generate, deposit, open := records[0], records[1], records[2]
	require.Equal(t, uint64(105), generate.Block)
	requireAmount(t, generate, 2)
	require.Equal(t, mcd.FormatAddress(testContracts.DaiJoin), generate.Adapter)
	require.Equal(t, mcd.FormatAddress(testProxy), generate.Proxy)
	require.Equal(t, mcd.FormatAddress(testOwner), generate.Recipient)

	require.Equal(t, uint64(100), deposit.Block)
	requireAmount(t, deposit, 5)
	require.Equal(t, "ETH", deposit.Gem)
	require.Equal(t, "ETH-A", deposit.Ilk)

	require.Equal(t, uint64(100), open.Block)
	require.Nil(t, open.Amount)
	require.Equal(t, "42", open.CdpID.String())

	require.Equal(t, deposit.Timestamp, open.Timestamp)
	require.Equal(t, uint64(1_600_000_000+105*15), generate.Timestamp)
}

func TestHistoryIntraBlockPrecedence(t *testing.T) {
	chain := &fakeChain{}
	chain.addOpen(200, 7)
	chain.addGive(200, 7, testProxy, testOwner)
	chain.addVatFrob(200, testUrn, wad(4))
	chain.addVatFrob(200, testUrn, new(big.Int).Neg(wad(1)))
	chain.addManagerFrob(200, 7, new(big.Int).Neg(wad(1)))
	chain.addDaiMove(mcd.DaiJoinEvent, testContracts.SaiJoin, 200, testProxy, wad(1))

	records, err := newTestEngine(chain).History(context.Background(), testPosition(7))
	require.NoError(t, err)
	require.Equal(t, []model.Kind{
		model.KindWithdraw,
		model.KindPayBack,
		model.KindDeposit,
		model.KindGive,
		model.KindOpen,
	}, kinds(records))
	require.Equal(t, mcd.FormatAddress(testContracts.SaiJoin), records[1].Adapter)

	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		require.True(t, prev.Block > cur.Block ||
			(prev.Block == cur.Block && prev.Kind.Precedence() >= cur.Kind.Precedence()),
			"records out of order at %d: %s before %s", i, prev.Kind, cur.Kind)
	}
}

func TestHistoryZeroDeltaSuppression(t *testing.T) {
	chain := &fakeChain{}
	chain.addVatFrob(300, testUrn, big.NewInt(0))
	chain.addManagerFrob(300, 9, big.NewInt(0))
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.DaiJoin, 300, testProxy, wad(1))

	records, err := newTestEngine(chain).History(context.Background(), testPosition(9))
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 4, chain.queryCount(), "zero dart must not issue an adapter query")
}

func TestHistoryOwnershipClassification(t *testing.T) {
	chain := &fakeChain{}
	chain.addGive(400, 11, testContracts.Migration, testProxy)
	chain.addGive(401, 11, testProxy, testOwner)

	records, err := newTestEngine(chain).History(context.Background(), testPosition(11))
	require.NoError(t, err)
	require.Equal(t, []model.Kind{model.KindGive, model.KindMigrate}, kinds(records))

	require.Equal(t, mcd.FormatAddress(testProxy), records[0].PrevOwner)
	require.Equal(t, mcd.FormatAddress(testOwner), records[0].NewOwner)
	require.Equal(t, mcd.FormatAddress(testContracts.Migration), records[1].PrevOwner)
	require.Equal(t, "ETH-A", records[1].Ilk)
	require.Equal(t, int64(11), records[1].CdpID.Int64())
}

func TestHistorySecondaryMatches(t *testing.T) {
	chain := &fakeChain{}
	chain.addManagerFrob(500, 12, wad(2))
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.DaiJoin, 500, testProxy, wad(1))
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.SaiJoin, 500, testProxy, wad(3))
	// Different block, different proxy and opposite direction must not pair.
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.DaiJoin, 501, testProxy, wad(9))
	chain.addDaiMove(mcd.DaiExitEvent, testContracts.DaiJoin, 500, testOwner, wad(9))
	chain.addDaiMove(mcd.DaiJoinEvent, testContracts.DaiJoin, 500, testProxy, wad(9))
	// A frob whose block has no adapter move yields nothing.
	chain.addManagerFrob(510, 12, wad(2))

	records, err := newTestEngine(chain).History(context.Background(), testPosition(12))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		require.Equal(t, model.KindGenerate, r.Kind)
		require.Equal(t, uint64(500), r.Block)
	}
	requireAmount(t, records[0], 1)
	requireAmount(t, records[1], 3)
	require.Equal(t, 6, chain.queryCount())
}

func TestHistoryTimestampSharing(t *testing.T) {
	chain := &fakeChain{}
	chain.addOpen(600, 13)
	chain.addVatFrob(600, testUrn, wad(1))
	chain.addVatFrob(600, testUrn, wad(2))
	chain.addVatFrob(610, testUrn, wad(3))
	chain.addGive(610, 13, testProxy, testOwner)

	records, err := newTestEngine(chain).History(context.Background(), testPosition(13))
	require.NoError(t, err)
	require.Len(t, records, 5)

	byBlock := map[uint64]uint64{}
	for _, r := range records {
		if ts, ok := byBlock[r.Block]; ok {
			require.Equal(t, ts, r.Timestamp)
		}
		byBlock[r.Block] = r.Timestamp
	}
	require.Equal(t, int64(1), chain.headerCount(600))
	require.Equal(t, int64(1), chain.headerCount(610))
	require.Equal(t, int64(2), chain.totalHeader.Load())
}

func TestHistoryConcurrentCallsShareComputation(t *testing.T) {
	chain := &fakeChain{delay: 5 * time.Millisecond}
	chain.addOpen(700, 14)
	chain.addVatFrob(701, testUrn, wad(1))
	engine := newTestEngine(chain)

	const callers = 16
	results := make([][]model.EventRecord, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.History(context.Background(), testPosition(14))
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
	require.Equal(t, 4, chain.queryCount())

	again, err := engine.History(context.Background(), testPosition(14))
	require.NoError(t, err)
	require.Equal(t, results[0], again)
	require.Equal(t, 4, chain.queryCount())
}

func TestHistoryDecodeErrorIsCached(t *testing.T) {
	chain := &fakeChain{}
	chain.add(testContracts.Vat, 800, []common.Hash{
		mcd.VatFrobEvent.Topic, {}, mcd.TopicFromAddress(testUrn),
	}, []byte{0x01, 0x02})
	engine := newTestEngine(chain)

	_, err := engine.History(context.Background(), testPosition(15))
	var decodeErr *mcd.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, mcd.VatFrobEvent.Name, decodeErr.Event)

	queries := chain.queryCount()
	_, again := engine.History(context.Background(), testPosition(15))
	require.ErrorAs(t, again, &decodeErr)
	require.Equal(t, queries, chain.queryCount(), "failed computation must not rerun")

	// Other ids are unaffected.
	_, err = engine.History(context.Background(), testPosition(16))
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, 2, engine.cache.Len())
}

func TestHistoryQueryError(t *testing.T) {
	boom := errors.New("rpc unavailable")
	chain := &fakeChain{filterErr: boom}

	_, err := newTestEngine(chain).History(context.Background(), testPosition(17))
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	require.ErrorIs(t, err, boom)
}

func TestHistoryTimestampError(t *testing.T) {
	boom := errors.New("header not found")
	chain := &fakeChain{headerErr: boom}
	chain.addOpen(900, 18)

	_, err := newTestEngine(chain).History(context.Background(), testPosition(18))
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	require.Equal(t, uint64(900), queryErr.Block)
	require.ErrorIs(t, err, boom)
}

func TestHistoryValidation(t *testing.T) {
	chain := &fakeChain{}
	engine := newTestEngine(chain)

	_, err := engine.History(context.Background(), model.Position{Urn: testUrn})
	require.Error(t, err)

	_, err = engine.History(context.Background(), model.Position{ID: big.NewInt(1)})
	require.Error(t, err)

	noAdapters := testContracts
	noAdapters.DaiJoin, noAdapters.SaiJoin = zeroAddress, zeroAddress
	_, err = New(Config{Contracts: noAdapters}, chain, chain, nil).History(context.Background(), testPosition(1))
	require.Error(t, err)
	require.Zero(t, chain.queryCount())
}

func TestHistoryDropsRemovedAndDuplicateLogs(t *testing.T) {
	chain := &fakeChain{}
	chain.addVatFrob(1000, testUrn, wad(1))
	chain.addVatFrob(1001, testUrn, wad(2))
	chain.mu.Lock()
	chain.logs = append(chain.logs, chain.logs[0])
	chain.logs[1].Removed = true
	chain.mu.Unlock()

	records, err := newTestEngine(chain).History(context.Background(), testPosition(19))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(1000), records[0].Block)
}

func TestHistoryDetachedFromCallerMemory(t *testing.T) {
	chain := &fakeChain{}
	chain.addOpen(1100, 42)
	chain.addVatFrob(1101, testUrn, wad(2))
	engine := newTestEngine(chain)

	pos := testPosition(42)
	first, err := engine.History(context.Background(), pos)
	require.NoError(t, err)
	require.Len(t, first, 2)

	pos.ID.SetInt64(99)
	first[0].CdpID.SetInt64(7)
	first[1].CdpID.SetInt64(7)

	again, err := engine.History(context.Background(), testPosition(42))
	require.NoError(t, err)
	for _, r := range again {
		require.Equal(t, int64(42), r.CdpID.Int64())
	}
	require.NotSame(t, again[0].CdpID, again[1].CdpID)
	require.Equal(t, 4, chain.queryCount())
}
