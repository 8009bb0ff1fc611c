package accountinghttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balancesheet"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type saveBalanceSheetRequest struct {
	Name            string `json:"name" validate:"max=200"`
	ReportDate      string `json:"reportDate" validate:"required"`
	ComparativeDate string `json:"comparativeDate"`
	IncludeDrafts   bool   `json:"includeDrafts"`
	MarkAsFinal     bool   `json:"markAsFinal"`
}

func tbFilter(r *http.Request) reports.Filter {
	return reports.Filter{
		Classes:    queryList(r, "classes"),
		CodeFrom:   strings.TrimSpace(r.URL.Query().Get("code_from")),
		CodeTo:     strings.TrimSpace(r.URL.Query().Get("code_to")),
		ActiveOnly: queryBool(r, "active_only"),
	}
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := requiredDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.deps.Reports.Generate(r.Context(), reports.Options{
		AsOfDate:            asOf,
		Filter:              tbFilter(r),
		GroupBy:             reports.GroupBy(strings.ToUpper(r.URL.Query().Get("group_by"))),
		IncludeZeroBalances: queryBool(r, "include_zero"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) handleComparative(w http.ResponseWriter, r *http.Request) {
	asOf, err := requiredDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var compare []time.Time
	for _, raw := range queryList(r, "compare") {
		d, err := shared.ParseDate(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		compare = append(compare, d)
	}
	opts := reports.ComparativeOptions{CurrentAsOfDate: asOf, CompareDates: compare, Filter: tbFilter(r)}
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		t, err := decimal.NewFromString(raw)
		if err != nil {
			h.fail(w, r, shared.Wrap(shared.ErrValidation, "invalid threshold %q", raw))
			return
		}
		opts.HighlightThreshold = &t
	}
	res, err := h.deps.Reports.GenerateComparative(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, err := requiredDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := requiredDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pl, err := h.deps.Reports.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	date, err := requiredDate(r, "report_date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cmp, err := queryDate(r, "comparative_date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.deps.BalanceSheet.Generate(r.Context(), balancesheet.GenerateOptions{
		ReportDate:      date,
		ComparativeDate: cmp,
		IncludeDrafts:   queryBool(r, "include_drafts"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleSaveBalanceSheet(w http.ResponseWriter, r *http.Request) {
	var req saveBalanceSheetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDateField(req.ReportDate, "reportDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cmp, err := parseDateField(req.ComparativeDate, "comparativeDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.deps.BalanceSheet.Save(r.Context(), balancesheet.SaveInput{
		Name: req.Name,
		GenerateOptions: balancesheet.GenerateOptions{
			ReportDate:      *date,
			ComparativeDate: cmp,
			IncludeDrafts:   req.IncludeDrafts,
		},
		MarkAsFinal: req.MarkAsFinal,
		ActorID:     actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleListBalanceSheets(w http.ResponseWriter, r *http.Request) {
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
	f := balancesheet.ListFilter{From: from, To: to, Page: queryInt(r, "page"), PerPage: queryInt(r, "per_page")}
	if raw := r.URL.Query().Get("final"); raw != "" {
		final := queryBool(r, "final")
		f.Final = &final
	}
	res, err := h.deps.BalanceSheet.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetBalanceSheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.deps.BalanceSheet.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleDeleteBalanceSheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.BalanceSheet.Delete(r.Context(), id, actor(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
