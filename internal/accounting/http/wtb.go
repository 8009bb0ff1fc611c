package accountinghttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/wtb"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type createWTBRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	PeriodID    int64  `json:"periodId" validate:"required,gt=0"`
	AsOfDate    string `json:"asOfDate"`
}

type columnRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Type           string `json:"type" validate:"omitempty,oneof=ADJUSTING RECLASSIFICATION"`
	JournalEntryID *int64 `json:"journalEntryId" validate:"omitempty,gt=0"`
}

type adjustmentRequest struct {
	ColumnID    int64           `json:"columnId" validate:"required,gt=0"`
	AccountID   int64           `json:"accountId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference" validate:"max=100"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) mountWTB(r chi.Router) {
	r.Get("/", h.handleListWTB)
	r.Post("/", h.handleCreateWTB)
	r.Get("/{id}", h.handleGetWTB)
	r.Get("/{id}/summary", h.handleWTBSummary)
	r.Post("/{id}/columns", h.handleAddColumn)
	r.Post("/{id}/adjustments", h.handleRecordAdjustment)
	r.Post("/{id}/lock", h.handleLockWTB)
	r.Delete("/{id}", h.handleDeleteWTB)
}

func (h *Handler) handleListWTB(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.WTB.List(r.Context(), wtb.ListFilter{
		Status:   wtb.Status(strings.ToUpper(r.URL.Query().Get("status"))),
		PeriodID: queryInt64(r, "period_id"),
		Page:     queryInt(r, "page"),
		PerPage:  queryInt(r, "per_page"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateWTB(w http.ResponseWriter, r *http.Request) {
	var req createWTBRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := parseDateField(req.AsOfDate, "asOfDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.WTB.Create(r.Context(), wtb.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		PeriodID:    req.PeriodID,
		AsOfDate:    asOf,
		ActorID:     actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetWTB(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.WTB.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleWTBSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.WTB.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req columnRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	col, err := h.deps.WTB.AddColumn(r.Context(), wtb.ColumnInput{
		WTBID:          id,
		Name:           req.Name,
		Type:           wtb.ColumnType(req.Type),
		JournalEntryID: req.JournalEntryID,
		ActorID:        actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, col)
}

func (h *Handler) handleRecordAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req adjustmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	line, err := h.deps.WTB.RecordAdjustment(r.Context(), wtb.AdjustmentInput{
		WTBID:       id,
		ColumnID:    req.ColumnID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Reference:   req.Reference,
		Description: req.Description,
		ActorID:     actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) handleLockWTB(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.WTB.Lock(r.Context(), id, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleDeleteWTB(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.WTB.Delete(r.Context(), id, actor(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
