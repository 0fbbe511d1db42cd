package model

import "github.com/ethereum/go-ethereum/common"

// Contracts holds the resolved addresses of the MCD contracts a history reads from.
type Contracts struct {
	Manager   common.Address
	Vat       common.Address
	DaiJoin   common.Address
	SaiJoin   common.Address
	Migration common.Address
}

// DaiAdapters returns the configured DAI adapters, current first.
func (c Contracts) DaiAdapters() []common.Address {
	out := make([]common.Address, 0, 2)
	for _, addr := range []common.Address{c.DaiJoin, c.SaiJoin} {
		if addr == (common.Address{}) {
			continue
		}
		out = append(out, addr)
	}
	return out
}
