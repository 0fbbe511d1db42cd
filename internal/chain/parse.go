package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress converts a hex string into common.Address. Empty input yields
// the zero address.
func ParseAddress(name, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, input)
	}
	return common.HexToAddress(input), nil
}

// ParseCdpID parses a positive decimal or 0x-prefixed CDP id.
func ParseCdpID(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	id, ok := new(big.Int).SetString(input, 0)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("invalid cdp id: %q", input)
	}
	return id, nil
}
