package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records chart of accounts changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the account directory.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the account directory service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Lookup(ctx context.Context, ids []int64) (map[int64]Account, error) {
	return s.repo.Lookup(ctx, ids)
}

// ListPostable returns every account that may carry journal lines.
func (s *Service) ListPostable(ctx context.Context) ([]Account, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, acc := range all {
		if acc.AllowsPosting {
			out = append(out, acc)
		}
	}
	return out, nil
}

// Tree loads the full chart into a hierarchy arena.
func (s *Service) Tree(ctx context.Context) (*Tree, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return NewTree(all), nil
}

// Create validates the code hierarchy and stores a new account. The parent is
// implied by the code; its path and level are derived here and never change.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	code := strings.TrimSpace(in.Code)
	if err := ValidateCode(code); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return Account{}, shared.Wrap(shared.ErrValidation, "account name required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.Wrap(shared.ErrValidation, "unknown account type %q", in.Type)
	}
	normal := in.NormalBalance
	if normal == "" {
		normal = in.Type.DefaultNormalBalance()
	}
	if !normal.Valid() {
		return Account{}, shared.Wrap(shared.ErrValidation, "unknown normal balance %q", normal)
	}

	var parent *Account
	if parentCode, ok := ParentCode(code); ok {
		p, err := s.repo.GetByCode(ctx, parentCode)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return Account{}, shared.Wrap(shared.ErrInvalidAccountCode, "parent %s of %s does not exist", parentCode, code)
			}
			return Account{}, err
		}
		if err := ValidateChild(p, code); err != nil {
			return Account{}, err
		}
		parent = &p
	}

	path, level := Derive(parent, code)
	acc := Account{
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Type:          in.Type,
		NormalBalance: normal,
		Class:         ClassOf(code),
		AllowsPosting: in.AllowsPosting,
		IsActive:      true,
		Path:          path,
		Level:         level,
	}
	if parent != nil {
		acc.ParentID = &parent.ID
	}
	created, err := s.repo.Insert(ctx, acc)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "account.create",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"after": created,
			},
			At: s.now(),
		})
	}
	return created, nil
}

// Deactivate hides an account from new postings. Accounts are never deleted.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actorID,
			Action:   "account.deactivate",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", id),
			Meta: map[string]any{
				"before": before,
			},
			At: s.now(),
		})
	}
	return nil
}
