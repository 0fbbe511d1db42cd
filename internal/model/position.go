package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the CDP context a history is computed for.
type Position struct {
	ID  *big.Int
	Ilk string
	// Gem is the collateral currency symbol, e.g. ETH for ETH-A.
	Gem string
	// Urn is the vat urn handler address holding the position's balances.
	Urn common.Address
}

// Key identifies the position in caches and storage.
func (p Position) Key() string {
	if p.ID == nil {
		return ""
	}
	return p.ID.String()
}
