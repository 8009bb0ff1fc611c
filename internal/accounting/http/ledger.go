package accountinghttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type createAccountRequest struct {
	Code          string `json:"code" validate:"required,max=20"`
	Name          string `json:"name" validate:"required,max=200"`
	Type          string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalBalance string `json:"normalBalance" validate:"omitempty,oneof=DEBIT CREDIT"`
	AllowsPosting *bool  `json:"allowsPosting"`
}

type fiscalYearRequest struct {
	Code      string `json:"code" validate:"required,max=20"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

type recalcRequest struct {
	AccountID int64 `json:"accountId" validate:"required,gt=0"`
	PeriodID  int64 `json:"periodId" validate:"required,gt=0"`
}

type batchRecalcRequest struct {
	PeriodID   int64   `json:"periodId" validate:"required,gt=0"`
	AccountIDs []int64 `json:"accountIds" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	postable := true
	if req.AllowsPosting != nil {
		postable = *req.AllowsPosting
	}
	acc, err := h.deps.Accounts.Create(r.Context(), accounts.CreateInput{
		Code:          req.Code,
		Name:          req.Name,
		Type:          accounts.AccountType(req.Type),
		NormalBalance: shared.NormalBalance(req.NormalBalance),
		AllowsPosting: postable,
		ActorID:       actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Accounts.Deactivate(r.Context(), id, actor(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	periodID, err := httpx.Int64Param(r.URL.Query().Get("period_id"), "period_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.Hierarchy.GetAggregatedBalance(r.Context(), id, periodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order := ledger.LedgerOrder(strings.ToLower(r.URL.Query().Get("order")))
	if order == "" {
		order = ledger.OrderDateAsc
	}
	page, err := h.deps.Ledger.GetAccountLedger(r.Context(), ledger.LedgerQuery{
		AccountID:             id,
		From:                  from,
		To:                    to,
		PeriodID:              queryInt64(r, "period_id"),
		OrderBy:               order,
		IncludeRunningBalance: r.URL.Query().Get("running_balance") != "false",
		Page:                  queryInt(r, "page"),
		PerPage:               queryInt(r, "per_page"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	day := shared.DateOf(time.Now())
	if asOf != nil {
		day = *asOf
	}
	res, err := h.deps.Ledger.GetAccountBalance(r.Context(), id, day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.Ledger.RecalculateBalance(r.Context(), req.AccountID, req.PeriodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleRecalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRecalcRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.Ledger.BatchRecalculateBalances(r.Context(), req.PeriodID, req.AccountIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateFiscalYear(w http.ResponseWriter, r *http.Request) {
	var req fiscalYearRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := parseDateField(req.StartDate, "startDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := parseDateField(req.EndDate, "endDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fy, err := h.deps.Periods.CreateFiscalYear(r.Context(), periods.CreateFiscalYearInput{
		Code:      req.Code,
		StartDate: *start,
		EndDate:   *end,
		ActorID:   actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fy)
}

func (h *Handler) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.deps.Periods.Close(r.Context(), id, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
