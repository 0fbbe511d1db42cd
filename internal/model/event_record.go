package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EventRecord is one entry of a CDP action history.
type EventRecord struct {
	Kind      Kind        `json:"type"`
	Block     uint64      `json:"block"`
	TxHash    common.Hash `json:"tx_hash"`
	CdpID     *big.Int    `json:"id"`
	Ilk       string      `json:"ilk,omitempty"`
	Timestamp uint64      `json:"timestamp"`

	// DEPOSIT / WITHDRAW
	Gem string `json:"gem,omitempty"`

	// DEPOSIT / WITHDRAW / GENERATE / PAY_BACK
	Adapter string           `json:"adapter,omitempty"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`

	// GENERATE / PAY_BACK
	Proxy     string `json:"proxy,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// GIVE / MIGRATE
	PrevOwner string `json:"prev_owner,omitempty"`
	NewOwner  string `json:"new_owner,omitempty"`
}

// WithTimestamp returns a copy of r carrying ts.
func (r EventRecord) WithTimestamp(ts uint64) EventRecord {
	r.Timestamp = ts
	return r
}

// Clone returns a copy of r that shares no memory with it.
func (r EventRecord) Clone() EventRecord {
	if r.CdpID != nil {
		r.CdpID = new(big.Int).Set(r.CdpID)
	}
	if r.Amount != nil {
		amount := r.Amount.Copy()
		r.Amount = &amount
	}
	return r
}
