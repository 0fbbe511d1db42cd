package mcd

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WadDecimals is the fixed-point precision of wad amounts.
const WadDecimals = 18

// FromWad converts a wad integer into its decimal value.
func FromWad(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -WadDecimals)
}
