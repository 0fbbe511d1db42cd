package mcd

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// noteData lays out a data blob the way LibNote does: a bytes offset word,
// a length word, then the first 224 bytes of calldata.
func noteData(event Event, values ...interface{}) []byte {
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

func buildLog(address common.Address, topics []common.Hash, data []byte) types.Log {
	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: 12345,
		TxHash:      common.HexToHash("0xdef"),
	}
}

func ilkBytes(ilk string) [32]byte {
	var out [32]byte
	copy(out[:], ilk)
	return out
}
