package accounts

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// BalanceSource returns stored closing balances for a period. Missing accounts
// are treated as zero.
type BalanceSource interface {
	ClosingBalances(ctx context.Context, periodID int64, accountIDs []int64) (map[int64]decimal.Decimal, error)
}

// Lister loads the chart of accounts.
type Lister interface {
	List(ctx context.Context) ([]Account, error)
}

// AggregatedBalance is a bottom-up rollup of an account subtree.
type AggregatedBalance struct {
	AccountID       int64               `json:"accountId"`
	Code            string              `json:"code"`
	Name            string              `json:"name"`
	Level           int                 `json:"level"`
	OwnBalance      decimal.Decimal     `json:"ownBalance"`
	ChildrenBalance decimal.Decimal     `json:"childrenBalance"`
	TotalBalance    decimal.Decimal     `json:"totalBalance"`
	Children        []AggregatedBalance `json:"children,omitempty"`
}

// HierarchyAggregator rolls balances up the account tree.
type HierarchyAggregator struct {
	accounts Lister
	balances BalanceSource
}

// NewHierarchyAggregator constructs the aggregator.
func NewHierarchyAggregator(accounts Lister, balances BalanceSource) *HierarchyAggregator {
	return &HierarchyAggregator{accounts: accounts, balances: balances}
}

// GetAggregatedBalance returns own, children and total balances for accountID
// in periodID. Children are resolved before their parent.
func (a *HierarchyAggregator) GetAggregatedBalance(ctx context.Context, accountID, periodID int64) (AggregatedBalance, error) {
	all, err := a.accounts.List(ctx)
	if err != nil {
		return AggregatedBalance{}, err
	}
	tree := NewTree(all)
	if _, ok := tree.Get(accountID); !ok {
		return AggregatedBalance{}, shared.Wrap(shared.ErrAccountNotFound, "account %d", accountID)
	}
	ids := tree.Subtree(accountID)
	own, err := a.balances.ClosingBalances(ctx, periodID, ids)
	if err != nil {
		return AggregatedBalance{}, err
	}
	return Aggregate(tree, accountID, own), nil
}

// Aggregate folds own balances over the subtree rooted at id in post-order.
func Aggregate(tree *Tree, id int64, own map[int64]decimal.Decimal) AggregatedBalance {
	acc, _ := tree.Get(id)
	node := AggregatedBalance{
		AccountID:       acc.ID,
		Code:            acc.Code,
		Name:            acc.Name,
		Level:           acc.Level,
		OwnBalance:      own[id],
		ChildrenBalance: decimal.Zero,
	}
	for _, child := range tree.Children(id) {
		sub := Aggregate(tree, child.ID, own)
		node.ChildrenBalance = node.ChildrenBalance.Add(sub.TotalBalance)
		node.Children = append(node.Children, sub)
	}
	node.TotalBalance = node.OwnBalance.Add(node.ChildrenBalance)
	return node
}
