package accounts

import (
	"sort"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const pathSeparator = "/"

// ParentCode returns the code of the synthetic parent implied by code, cut at
// the last '.' or '-' segment separator.
func ParentCode(code string) (string, bool) {
	idx := strings.LastIndexAny(code, ".-")
	if idx <= 0 {
		return "", false
	}
	return code[:idx], true
}

// ClassOf returns the leading digit grouping of a code.
func ClassOf(code string) string {
	if code == "" {
		return ""
	}
	return code[:1]
}

// ValidateCode checks the shape of an account code.
func ValidateCode(code string) error {
	if code == "" {
		return shared.Wrap(shared.ErrInvalidAccountCode, "code required")
	}
	if _, err := strconv.Atoi(code[:1]); err != nil {
		return shared.Wrap(shared.ErrInvalidAccountCode, "code %s must start with a class digit", code)
	}
	segments := strings.FieldsFunc(code, func(r rune) bool { return r == '.' || r == '-' })
	if len(segments) != strings.Count(code, ".")+strings.Count(code, "-")+1 {
		return shared.Wrap(shared.ErrInvalidAccountCode, "code %s has an empty segment", code)
	}
	return nil
}

// ValidateChild enforces that a child code strictly extends its parent code.
// This is what makes cycles impossible in the hierarchy.
func ValidateChild(parent Account, code string) error {
	if len(code) <= len(parent.Code) || !strings.HasPrefix(code, parent.Code) {
		return shared.Wrap(shared.ErrInvalidAccountCode, "code %s must extend parent %s", code, parent.Code)
	}
	return nil
}

// Derive computes path and level for a node under parent (nil for roots).
func Derive(parent *Account, code string) (path string, level int) {
	if parent == nil {
		return code, 1
	}
	return parent.Path + pathSeparator + code, parent.Level + 1
}

// Tree is an arena of accounts with a derived children index.
type Tree struct {
	byID     map[int64]Account
	children map[int64][]int64
	roots    []int64
}

// NewTree indexes accounts by id and parent.
func NewTree(list []Account) *Tree {
	t := &Tree{
		byID:     make(map[int64]Account, len(list)),
		children: make(map[int64][]int64),
	}
	for _, acc := range list {
		t.byID[acc.ID] = acc
	}
	for _, acc := range list {
		if acc.ParentID != nil {
			if _, ok := t.byID[*acc.ParentID]; ok {
				t.children[*acc.ParentID] = append(t.children[*acc.ParentID], acc.ID)
				continue
			}
		}
		t.roots = append(t.roots, acc.ID)
	}
	byCode := func(ids []int64) {
		sort.Slice(ids, func(i, j int) bool { return t.byID[ids[i]].Code < t.byID[ids[j]].Code })
	}
	for id := range t.children {
		byCode(t.children[id])
	}
	byCode(t.roots)
	return t
}

// Get returns the account with id.
func (t *Tree) Get(id int64) (Account, bool) {
	acc, ok := t.byID[id]
	return acc, ok
}

// Children lists the direct children of id ordered by code.
func (t *Tree) Children(id int64) []Account {
	ids := t.children[id]
	out := make([]Account, 0, len(ids))
	for _, child := range ids {
		out = append(out, t.byID[child])
	}
	return out
}

// Roots lists top-level accounts ordered by code.
func (t *Tree) Roots() []Account {
	out := make([]Account, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.byID[id])
	}
	return out
}

// Subtree returns id and all of its descendants in post-order.
func (t *Tree) Subtree(id int64) []int64 {
	var out []int64
	var walk func(int64)
	walk = func(node int64) {
		for _, child := range t.children[node] {
			walk(child)
		}
		out = append(out, node)
	}
	if _, ok := t.byID[id]; ok {
		walk(id)
	}
	return out
}
