package mcd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"cdpHistory/internal/model"
)

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ResolvePosition loads the urn handler and ilk of cdp id from the CDP manager.
// An empty gem defaults to the ilk prefix, e.g. ETH for ETH-A.
func ResolvePosition(ctx context.Context, caller ContractCaller, manager common.Address, id *big.Int, gem string) (model.Position, error) {
	if caller == nil {
		return model.Position{}, fmt.Errorf("contract caller is nil")
	}
	if id == nil || id.Sign() <= 0 {
		return model.Position{}, fmt.Errorf("invalid cdp id: %v", id)
	}

	managerABI, err := ManagerABI()
	if err != nil {
		return model.Position{}, fmt.Errorf("parse manager abi: %w", err)
	}

	values, err := callManager(ctx, caller, manager, managerABI, "urns", id)
	if err != nil {
		return model.Position{}, err
	}
	urn, err := asAddress(values[0])
	if err != nil {
		return model.Position{}, fmt.Errorf("urns: %w", err)
	}
	if urn == (common.Address{}) {
		return model.Position{}, fmt.Errorf("cdp %s has no urn", id)
	}

	values, err = callManager(ctx, caller, manager, managerABI, "ilks", id)
	if err != nil {
		return model.Position{}, err
	}
	ilk, ok := bytes32ToString(values[0])
	if !ok {
		return model.Position{}, fmt.Errorf("ilks: unsupported type %T", values[0])
	}

	if gem == "" {
		gem = GemFromIlk(ilk)
	}

	return model.Position{ID: new(big.Int).Set(id), Ilk: ilk, Gem: gem, Urn: urn}, nil
}

// GemFromIlk returns the collateral symbol an ilk name starts with.
func GemFromIlk(ilk string) string {
	if idx := strings.Index(ilk, "-"); idx > 0 {
		return ilk[:idx]
	}
	return ilk
}

func callManager(ctx context.Context, caller ContractCaller, manager common.Address, managerABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := managerABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &manager, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := managerABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	return values, nil
}
