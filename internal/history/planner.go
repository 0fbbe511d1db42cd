package history

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"cdpHistory/internal/mcd"
	"cdpHistory/internal/model"
)

// mcdDeployBlock predates every MCD event on mainnet (2019-09-22) and kovan (2018-09-04).
const mcdDeployBlock = 8600000

// Query is one primary log query of a history computation.
type Query struct {
	Family Family
	Filter ethereum.FilterQuery
}

// StartBlock returns the first block worth scanning on chainID.
func StartBlock(chainID *big.Int) uint64 {
	if chainID != nil && chainID.IsUint64() {
		switch chainID.Uint64() {
		case 1, 42:
			return mcdDeployBlock
		}
	}
	return 1
}

// Plan builds the primary queries covering every action that can touch pos.
// Topic0 of each query is the family's registered signature. The queries are
// independent; ToBlock is left open (latest).
func Plan(pos model.Position, contracts model.Contracts, fromBlock uint64) []Query {
	from := new(big.Int).SetUint64(fromBlock)
	id := mcd.TopicFromInt(pos.ID)
	urn := mcd.TopicFromAddress(pos.Urn)

	queries := make([]Query, 0, len(familyOrder))
	for _, family := range familyOrder {
		topic0 := []common.Hash{families[family].event.Topic}
		filter := ethereum.FilterQuery{
			FromBlock: from,
			Addresses: []common.Address{contracts.Manager},
		}
		switch family {
		case FamilyOpen:
			filter.Topics = [][]common.Hash{topic0, nil, nil, {id}}
		case FamilyVatFrob:
			filter.Addresses = []common.Address{contracts.Vat}
			filter.Topics = [][]common.Hash{topic0, nil, {urn}}
		default:
			// Manager notes index the cdp id right after the caller.
			filter.Topics = [][]common.Hash{topic0, nil, {id}}
		}
		queries = append(queries, Query{Family: family, Filter: filter})
	}
	return queries
}

// adapterQuery looks up DAI adapter moves by proxy within exactly one block.
// A negative dart repays debt through join, a positive one draws it through exit.
func adapterQuery(contracts model.Contracts, dart *big.Int, proxy common.Hash, block uint64) ethereum.FilterQuery {
	topic := mcd.DaiExitEvent.Topic
	if dart.Sign() < 0 {
		topic = mcd.DaiJoinEvent.Topic
	}
	number := new(big.Int).SetUint64(block)
	return ethereum.FilterQuery{
		FromBlock: number,
		ToBlock:   new(big.Int).Set(number),
		Addresses: contracts.DaiAdapters(),
		Topics:    [][]common.Hash{{topic}, {proxy}},
	}
}
