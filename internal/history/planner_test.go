package history

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cdpHistory/internal/mcd"
)

func TestStartBlock(t *testing.T) {
	cases := []struct {
		chainID *big.Int
		want    uint64
	}{
		{big.NewInt(1), 8600000},
		{big.NewInt(42), 8600000},
		{big.NewInt(5), 1},
		{big.NewInt(1337), 1},
		{nil, 1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StartBlock(tc.chainID), "chain %v", tc.chainID)
	}
}

func TestPlan(t *testing.T) {
	pos := testPosition(42)
	queries := Plan(pos, testContracts, 8600000)
	require.Len(t, queries, 4)

	id := mcd.TopicFromInt(big.NewInt(42))
	urn := mcd.TopicFromAddress(testUrn)
	want := map[Family]struct {
		address common.Address
		topics  [][]common.Hash
	}{
		FamilyOpen:        {testContracts.Manager, [][]common.Hash{{mcd.NewCdpEvent.Topic}, nil, nil, {id}}},
		FamilyManagerFrob: {testContracts.Manager, [][]common.Hash{{mcd.ManagerFrobEvent.Topic}, nil, {id}}},
		FamilyVatFrob:     {testContracts.Vat, [][]common.Hash{{mcd.VatFrobEvent.Topic}, nil, {urn}}},
		FamilyGive:        {testContracts.Manager, [][]common.Hash{{mcd.GiveEvent.Topic}, nil, {id}}},
	}

	for i, q := range queries {
		require.Equal(t, familyOrder[i], q.Family)
		expected := want[q.Family]
		require.Equal(t, []common.Address{expected.address}, q.Filter.Addresses, q.Family.String())
		require.Equal(t, expected.topics, q.Filter.Topics, q.Family.String())
		require.Equal(t, uint64(8600000), q.Filter.FromBlock.Uint64())
		require.Nil(t, q.Filter.ToBlock)
		require.Equal(t, families[q.Family].event.Topic, q.Filter.Topics[0][0])
	}
}

func TestAdapterQuery(t *testing.T) {
	proxy := mcd.TopicFromAddress(testProxy)

	exit := adapterQuery(testContracts, big.NewInt(1), proxy, 123)
	require.Equal(t, [][]common.Hash{{mcd.DaiExitEvent.Topic}, {proxy}}, exit.Topics)
	require.Equal(t, []common.Address{testContracts.DaiJoin, testContracts.SaiJoin}, exit.Addresses)
	require.Equal(t, uint64(123), exit.FromBlock.Uint64())
	require.Equal(t, uint64(123), exit.ToBlock.Uint64())

	join := adapterQuery(testContracts, big.NewInt(-1), proxy, 123)
	require.Equal(t, mcd.DaiJoinEvent.Topic, join.Topics[0][0])

	daiOnly := testContracts
	daiOnly.SaiJoin = common.Address{}
	require.Equal(t, []common.Address{testContracts.DaiJoin}, adapterQuery(daiOnly, big.NewInt(1), proxy, 1).Addresses)
}

func TestFamilyString(t *testing.T) {
	require.Equal(t, "open", FamilyOpen.String())
	require.Equal(t, "manager_frob", FamilyManagerFrob.String())
	require.Equal(t, "vat_frob", FamilyVatFrob.String())
	require.Equal(t, "give", FamilyGive.String())
	require.Equal(t, "family(9)", Family(9).String())
}
