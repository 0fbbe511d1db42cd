package mcd

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const cdpManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "usr", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "own", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "cdp", "type": "uint256"}
    ],
    "name": "NewCdp",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "urns",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "ilks",
    "outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "owns",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	managerABI     abi.ABI
	managerABIOnce sync.Once
	managerABIErr  error
)

// ManagerABI returns the parsed subset of the DssCdpManager ABI.
func ManagerABI() (abi.ABI, error) {
	managerABIOnce.Do(func() {
		managerABI, managerABIErr = abi.JSON(strings.NewReader(cdpManagerABIJSON))
	})
	return managerABI, managerABIErr
}
