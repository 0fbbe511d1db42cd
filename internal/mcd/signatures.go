package mcd

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event describes how logs of one signature are laid out.
//
// Note-style logs (emitted by the LibNote modifier) use the 4-byte function
// selector, right-padded to 32 bytes, as topic0 and carry the call arguments
// in a data blob behind a variable header.
type Event struct {
	Name      string
	Signature string
	Topic     common.Hash
	// Selector is nil for regular Solidity events.
	Selector []byte
	// Indexed lists the topic slots following topic0, in order.
	Indexed abi.Arguments
	// Data lists the fixed-width tuple encoded after the selector.
	Data abi.Arguments
}

// IsNote reports whether e is a note-style log.
func (e Event) IsNote() bool {
	return len(e.Selector) > 0
}

var (
	NewCdpEvent = Event{
		Name:      "NewCdp",
		Signature: "NewCdp(address,address,uint256)",
		Topic:     EventTopic("NewCdp(address,address,uint256)"),
		Indexed:   indexedArgs(arg("usr", "address"), arg("own", "address"), arg("cdp", "uint256")),
	}

	ManagerFrobEvent = noteEvent("ManagerFrob", "frob(uint256,int256,int256)",
		indexedArgs(arg("caller", "address"), arg("cdp", "uint256")),
		dataArgs(arg("cdp", "uint256"), arg("dink", "int256"), arg("dart", "int256")),
	)

	VatFrobEvent = noteEvent("VatFrob", "frob(bytes32,address,address,address,int256,int256)",
		indexedArgs(arg("i", "bytes32"), arg("u", "address"), arg("v", "address")),
		dataArgs(
			arg("i", "bytes32"),
			arg("u", "address"),
			arg("v", "address"),
			arg("w", "address"),
			arg("dink", "int256"),
			arg("dart", "int256"),
		),
	)

	GiveEvent = noteEvent("Give", "give(uint256,address)",
		indexedArgs(arg("caller", "address"), arg("cdp", "uint256"), arg("dst", "address")),
		dataArgs(arg("cdp", "uint256"), arg("dst", "address")),
	)

	DaiJoinEvent = noteEvent("DaiJoin", "join(address,uint256)",
		indexedArgs(arg("caller", "address"), arg("usr", "address"), arg("wad", "uint256")),
		dataArgs(arg("usr", "address"), arg("wad", "uint256")),
	)

	DaiExitEvent = noteEvent("DaiExit", "exit(address,uint256)",
		indexedArgs(arg("caller", "address"), arg("usr", "address"), arg("wad", "uint256")),
		dataArgs(arg("usr", "address"), arg("wad", "uint256")),
	)
)

// Events is the signature table keyed by topic0.
var Events = map[common.Hash]Event{
	NewCdpEvent.Topic:      NewCdpEvent,
	ManagerFrobEvent.Topic: ManagerFrobEvent,
	VatFrobEvent.Topic:     VatFrobEvent,
	GiveEvent.Topic:        GiveEvent,
	DaiJoinEvent.Topic:     DaiJoinEvent,
	DaiExitEvent.Topic:     DaiExitEvent,
}

// Lookup returns the event registered for topic0.
func Lookup(topic0 common.Hash) (Event, bool) {
	event, ok := Events[topic0]
	return event, ok
}

// Selector returns the 4-byte function selector of signature.
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// NoteTopic returns the topic0 of a note-style log: the selector right-padded to a full slot.
func NoteTopic(signature string) common.Hash {
	return common.BytesToHash(common.RightPadBytes(Selector(signature), common.HashLength))
}

// EventTopic returns the keccak256 topic0 of a regular event.
func EventTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// TopicFromInt left-pads a non-negative v into a topic slot.
func TopicFromInt(v *big.Int) common.Hash {
	return common.BigToHash(v)
}

// TopicFromAddress left-pads addr into a topic slot.
func TopicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func noteEvent(name, signature string, indexed, data abi.Arguments) Event {
	return Event{
		Name:      name,
		Signature: signature,
		Topic:     NoteTopic(signature),
		Selector:  Selector(signature),
		Indexed:   indexed,
		Data:      data,
	}
}

func arg(name, typ string) abi.Argument {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(fmt.Sprintf("mcd: abi type %s: %v", typ, err))
	}
	return abi.Argument{Name: name, Type: t}
}

func indexedArgs(args ...abi.Argument) abi.Arguments {
	out := make(abi.Arguments, 0, len(args))
	for _, a := range args {
		a.Indexed = true
		out = append(out, a)
	}
	return out
}

func dataArgs(args ...abi.Argument) abi.Arguments {
	return abi.Arguments(args)
}
