package history

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"cdpHistory/internal/mcd"
	"cdpHistory/internal/model"
)

var (
	testContracts = model.Contracts{
		Manager:   common.HexToAddress("0x5ef30b9986345249bc32d8928B7ee64DE9435E39"),
		Vat:       common.HexToAddress("0x35D1b3F3D7966A1DFe207aa4514C12a259A0492B"),
		DaiJoin:   common.HexToAddress("0x9759A6Ac90977b93B58547b4A71c78317f391A28"),
		SaiJoin:   common.HexToAddress("0xad37fd42185Ba63009177058208dd1be4b136e6b"),
		Migration: common.HexToAddress("0xc73e0383F3Aff3215E6f04B0331D58CeCf0Ab849"),
	}
	testProxy = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOwner = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testUrn   = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func testPosition(id int64) model.Position {
	return model.Position{ID: big.NewInt(id), Ilk: "ETH-A", Gem: "ETH", Urn: testUrn}
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// fakeChain is an in-memory log store that evaluates filter queries the way
// eth_getLogs does and counts calls.
type fakeChain struct {
	mu      sync.Mutex
	logs    []types.Log
	nextTx  uint64
	queries []ethereum.FilterQuery

	filterErr error
	delay     time.Duration

	headerCalls sync.Map
	headerErr   error
	totalHeader atomic.Int64
}

func (f *fakeChain) add(address common.Address, block uint64, topics []common.Hash, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTx++
	f.logs = append(f.logs, types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(f.nextTx)),
		Index:       uint(len(f.logs)),
	})
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.filterErr != nil {
		return nil, f.filterErr
	}

	var out []types.Log
	for _, log := range f.logs {
		if matches(q, log) {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.totalHeader.Add(1)
	counter, _ := f.headerCalls.LoadOrStore(number, new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)
	if f.headerErr != nil {
		return 0, f.headerErr
	}
	return 1_600_000_000 + number*15, nil
}

func (f *fakeChain) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeChain) headerCount(number uint64) int64 {
	counter, ok := f.headerCalls.Load(number)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int64).Load()
}

func matches(q ethereum.FilterQuery, log types.Log) bool {
	if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, addr := range q.Addresses {
			if addr == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range set {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func noteData(event mcd.Event, values ...interface{}) []byte {
	packed, err := event.Data.Pack(values...)
	if err != nil {
		panic(err)
	}
	calldata := append(append([]byte{}, event.Selector...), packed...)
	calldata = common.RightPadBytes(calldata, 224)[:224]

	data := make([]byte, 0, 64+len(calldata))
	data = append(data, common.LeftPadBytes([]byte{0x20}, 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(224).Bytes(), 32)...)
	return append(data, calldata...)
}

func (f *fakeChain) addOpen(block uint64, id int64) {
	f.add(testContracts.Manager, block, []common.Hash{
		mcd.NewCdpEvent.Topic,
		mcd.TopicFromAddress(testProxy),
		mcd.TopicFromAddress(testOwner),
		mcd.TopicFromInt(big.NewInt(id)),
	}, nil)
}

func (f *fakeChain) addManagerFrob(block uint64, id int64, dart *big.Int) {
	f.add(testContracts.Manager, block, []common.Hash{
		mcd.ManagerFrobEvent.Topic,
		mcd.TopicFromAddress(testProxy),
		mcd.TopicFromInt(big.NewInt(id)),
		{},
	}, noteData(mcd.ManagerFrobEvent, big.NewInt(id), big.NewInt(0), dart))
}

func (f *fakeChain) addVatFrob(block uint64, urn common.Address, dink *big.Int) {
	var ilk [32]byte
	copy(ilk[:], "ETH-A")
	f.add(testContracts.Vat, block, []common.Hash{
		mcd.VatFrobEvent.Topic,
		common.BytesToHash(ilk[:]),
		mcd.TopicFromAddress(urn),
		mcd.TopicFromAddress(urn),
	}, noteData(mcd.VatFrobEvent, ilk, urn, urn, testProxy, dink, big.NewInt(0)))
}

func (f *fakeChain) addGive(block uint64, id int64, prev, dst common.Address) {
	f.add(testContracts.Manager, block, []common.Hash{
		mcd.GiveEvent.Topic,
		mcd.TopicFromAddress(prev),
		mcd.TopicFromInt(big.NewInt(id)),
		mcd.TopicFromAddress(dst),
	}, noteData(mcd.GiveEvent, big.NewInt(id), dst))
}

func (f *fakeChain) addDaiMove(event mcd.Event, adapter common.Address, block uint64, proxy common.Address, amount *big.Int) {
	f.add(adapter, block, []common.Hash{
		event.Topic,
		mcd.TopicFromAddress(proxy),
		mcd.TopicFromAddress(testOwner),
		mcd.TopicFromInt(amount),
	}, noteData(event, testOwner, amount))
}
