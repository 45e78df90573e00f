package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTxType is the direction class of a bank ledger entry.
// ADJUSTMENT amounts are signed: positive credits, negative debits.
type BankTxType string

const (
	BankTxDeposit    BankTxType = "DEPOSIT"
	BankTxWithdrawal BankTxType = "WITHDRAWAL"
	BankTxAdjustment BankTxType = "ADJUSTMENT"
)

// BankAccount carries a denormalized CurrentBalance that must always equal
// the BalanceAfter of the account's latest ledger entry.
type BankAccount struct {
	ID             string
	Code           string
	Name           string
	CurrentBalance decimal.Decimal
	Active         bool
	Version        int // optimistic locking
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BankLedgerEntry is one append-only row of an account's cash ledger.
type BankLedgerEntry struct {
	ID           string
	AccountID    string
	Type         BankTxType
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	SaleRef      string // id of the originating sale, if any
	Reference    string // free-form caller memo
	CreatedAt    time.Time
}

// SignedDelta returns the balance movement an entry of the given type and
// amount produces.
func SignedDelta(txType BankTxType, amount decimal.Decimal) decimal.Decimal {
	if txType == BankTxWithdrawal {
		return amount.Neg()
	}
	return amount
}
