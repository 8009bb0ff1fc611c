package accounts

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is known.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultNormalBalance returns the conventional side for the type.
func (t AccountType) DefaultNormalBalance() shared.NormalBalance {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return shared.NormalDebit
	}
	return shared.NormalCredit
}

// Account models a chart of accounts node. Path and Level are fixed at creation.
type Account struct {
	ID            int64                `json:"id"`
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Type          AccountType          `json:"type"`
	NormalBalance shared.NormalBalance `json:"normalBalance"`
	Class         string               `json:"class"`
	AllowsPosting bool                 `json:"allowsPosting"`
	IsActive      bool                 `json:"isActive"`
	ParentID      *int64               `json:"parentId,omitempty"`
	Path          string               `json:"path"`
	Level         int                  `json:"level"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// CreateInput describes a new chart of accounts node.
type CreateInput struct {
	Code          string
	Name          string
	Type          AccountType
	NormalBalance shared.NormalBalance
	AllowsPosting bool
	ActorID       int64
}
