package model

// Kind identifies the action an EventRecord describes.
type Kind string

const (
	KindOpen     Kind = "OPEN"
	KindDeposit  Kind = "DEPOSIT"
	KindWithdraw Kind = "WITHDRAW"
	KindGenerate Kind = "GENERATE"
	KindPayBack  Kind = "PAY_BACK"
	KindGive     Kind = "GIVE"
	KindMigrate  Kind = "MIGRATE"
)

// precedence ranks actions that share a block. Higher ranks sort first.
var precedence = map[Kind]int{
	KindOpen:     0,
	KindDeposit:  1,
	KindGive:     1,
	KindMigrate:  1,
	KindGenerate: 2,
	KindPayBack:  2,
	KindWithdraw: 3,
}

// Precedence returns the intra-block sort rank of k.
func (k Kind) Precedence() int {
	return precedence[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := precedence[k]
	return ok
}
