package mcd

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NewCdp is a decoded NewCdp event.
type NewCdp struct {
	Usr common.Address
	Own common.Address
	Cdp *big.Int
}

// ManagerFrob is a decoded DssCdpManager.frob note.
type ManagerFrob struct {
	Caller common.Address
	Cdp    *big.Int
	Dink   *big.Int
	// Dart is in normalized debt units and is only meaningful scaled by the ilk rate.
	Dart *big.Int
}

// VatFrob is a decoded Vat.frob note.
type VatFrob struct {
	Ilk  string
	U    common.Address
	V    common.Address
	W    common.Address
	Dink *big.Int
	Dart *big.Int
}

// Give is a decoded DssCdpManager.give note.
type Give struct {
	PrevOwner common.Address
	Cdp       *big.Int
	NewOwner  common.Address
}

// DaiMove is a decoded DaiJoin join or exit note.
type DaiMove struct {
	Adapter common.Address
	Caller  common.Address
	Usr     common.Address
	Wad     *big.Int
}

// DecodeNewCdp decodes a NewCdp log.
func DecodeNewCdp(log types.Log) (NewCdp, error) {
	topics, err := parseTopics(NewCdpEvent, log.Topics)
	if err != nil {
		return NewCdp{}, err
	}
	usr, err := asAddress(topics["usr"])
	if err != nil {
		return NewCdp{}, decodeErr(NewCdpEvent, "usr", err)
	}
	own, err := asAddress(topics["own"])
	if err != nil {
		return NewCdp{}, decodeErr(NewCdpEvent, "own", err)
	}
	cdp, err := asBigInt(topics["cdp"])
	if err != nil {
		return NewCdp{}, decodeErr(NewCdpEvent, "cdp", err)
	}
	return NewCdp{Usr: usr, Own: own, Cdp: cdp}, nil
}

// DecodeManagerFrob decodes a manager frob note. The caller comes from topic1,
// the (cdp, dink, dart) tuple from the data blob.
func DecodeManagerFrob(log types.Log) (ManagerFrob, error) {
	topics, err := parseTopics(ManagerFrobEvent, log.Topics)
	if err != nil {
		return ManagerFrob{}, err
	}
	caller, err := asAddress(topics["caller"])
	if err != nil {
		return ManagerFrob{}, decodeErr(ManagerFrobEvent, "caller", err)
	}

	values, err := unpackNote(ManagerFrobEvent, log.Data)
	if err != nil {
		return ManagerFrob{}, err
	}
	ints, err := bigInts(ManagerFrobEvent, values)
	if err != nil {
		return ManagerFrob{}, err
	}

	return ManagerFrob{Caller: caller, Cdp: ints[0], Dink: ints[1], Dart: ints[2]}, nil
}

// DecodeVatFrob decodes a vat frob note from its data blob.
func DecodeVatFrob(log types.Log) (VatFrob, error) {
	values, err := unpackNote(VatFrobEvent, log.Data)
	if err != nil {
		return VatFrob{}, err
	}
	if len(values) != 6 {
		return VatFrob{}, decodeErr(VatFrobEvent, fmt.Sprintf("unexpected values: %d", len(values)), nil)
	}

	ilk, ok := bytes32ToString(values[0])
	if !ok {
		return VatFrob{}, decodeErr(VatFrobEvent, fmt.Sprintf("unsupported ilk type %T", values[0]), nil)
	}
	var addrs [3]common.Address
	for i := range addrs {
		addr, err := asAddress(values[1+i])
		if err != nil {
			return VatFrob{}, decodeErr(VatFrobEvent, "address", err)
		}
		addrs[i] = addr
	}
	dink, err := asBigInt(values[4])
	if err != nil {
		return VatFrob{}, decodeErr(VatFrobEvent, "dink", err)
	}
	dart, err := asBigInt(values[5])
	if err != nil {
		return VatFrob{}, decodeErr(VatFrobEvent, "dart", err)
	}

	return VatFrob{Ilk: ilk, U: addrs[0], V: addrs[1], W: addrs[2], Dink: dink, Dart: dart}, nil
}

// DecodeGive decodes a give note from its topics.
func DecodeGive(log types.Log) (Give, error) {
	topics, err := parseTopics(GiveEvent, log.Topics)
	if err != nil {
		return Give{}, err
	}
	prev, err := asAddress(topics["caller"])
	if err != nil {
		return Give{}, decodeErr(GiveEvent, "caller", err)
	}
	cdp, err := asBigInt(topics["cdp"])
	if err != nil {
		return Give{}, decodeErr(GiveEvent, "cdp", err)
	}
	dst, err := asAddress(topics["dst"])
	if err != nil {
		return Give{}, decodeErr(GiveEvent, "dst", err)
	}
	return Give{PrevOwner: prev, Cdp: cdp, NewOwner: dst}, nil
}

// DecodeDaiMove decodes a DaiJoin join or exit note from its topics.
func DecodeDaiMove(log types.Log) (DaiMove, error) {
	if len(log.Topics) == 0 {
		return DaiMove{}, &DecodeError{Event: "DaiMove", Reason: "missing topics"}
	}
	event, ok := Lookup(log.Topics[0])
	if !ok || (event.Name != DaiJoinEvent.Name && event.Name != DaiExitEvent.Name) {
		return DaiMove{}, &DecodeError{Event: "DaiMove", Reason: fmt.Sprintf("unexpected topic0 %s", log.Topics[0].Hex())}
	}

	topics, err := parseTopics(event, log.Topics)
	if err != nil {
		return DaiMove{}, err
	}
	caller, err := asAddress(topics["caller"])
	if err != nil {
		return DaiMove{}, decodeErr(event, "caller", err)
	}
	usr, err := asAddress(topics["usr"])
	if err != nil {
		return DaiMove{}, decodeErr(event, "usr", err)
	}
	wad, err := asBigInt(topics["wad"])
	if err != nil {
		return DaiMove{}, decodeErr(event, "wad", err)
	}
	return DaiMove{Adapter: log.Address, Caller: caller, Usr: usr, Wad: wad}, nil
}

// FormatAddress renders addr as lowercase 0x-prefixed hex.
func FormatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// StripNotePrefix drops everything up to and including the first occurrence
// of the event selector in data. Relayed calls put an arbitrary header in
// front of the selector, so decoding from offset zero is wrong.
func StripNotePrefix(event Event, data []byte) ([]byte, error) {
	if !event.IsNote() {
		return data, nil
	}
	idx := bytes.Index(data, event.Selector)
	if idx < 0 {
		return nil, decodeErr(event, "selector not found in data", nil)
	}
	return data[idx+len(event.Selector):], nil
}

func unpackNote(event Event, data []byte) ([]interface{}, error) {
	rest, err := StripNotePrefix(event, data)
	if err != nil {
		return nil, err
	}
	need := 32 * len(event.Data)
	if len(rest) < need {
		return nil, decodeErr(event, fmt.Sprintf("data too short: %d bytes, need %d", len(rest), need), nil)
	}
	values, err := event.Data.Unpack(rest[:need])
	if err != nil {
		return nil, decodeErr(event, "unpack", err)
	}
	return values, nil
}

func parseTopics(event Event, topics []common.Hash) (map[string]interface{}, error) {
	if len(topics) == 0 {
		return nil, decodeErr(event, "missing topics", nil)
	}
	if topics[0] != event.Topic {
		return nil, decodeErr(event, fmt.Sprintf("unexpected topic0 %s", topics[0].Hex()), nil)
	}
	want := len(event.Indexed)
	if len(topics) < want+1 {
		return nil, decodeErr(event, fmt.Sprintf("expected %d topics, got %d", want+1, len(topics)), nil)
	}

	out := make(map[string]interface{}, want)
	if err := abi.ParseTopicsIntoMap(out, event.Indexed, topics[1:want+1]); err != nil {
		return nil, decodeErr(event, "parse topics", err)
	}
	return out, nil
}

func bigInts(event Event, values []interface{}) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(values))
	for i, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return nil, decodeErr(event, fmt.Sprintf("value %d", i), err)
		}
		out = append(out, v)
	}
	if len(out) != len(event.Data) {
		return nil, decodeErr(event, fmt.Sprintf("unexpected values: %d", len(out)), nil)
	}
	return out, nil
}
