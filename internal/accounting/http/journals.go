package accountinghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const idempotencyModule = "journals"

type lineRequest struct {
	AccountID    int64           `json:"accountId" validate:"required,gt=0"`
	Description  string          `json:"description" validate:"max=500"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	CostCenter   string          `json:"costCenter" validate:"max=50"`
	Project      string          `json:"project" validate:"max=50"`
	TaxCode      string          `json:"taxCode" validate:"max=20"`
}

type createJournalRequest struct {
	EntryDate        string        `json:"entryDate" validate:"required"`
	EntryType        string        `json:"entryType" validate:"omitempty,oneof=STANDARD ADJUSTMENT CLOSING OPENING REVERSAL ACCRUAL"`
	Description      string        `json:"description" validate:"max=500"`
	Reference        string        `json:"reference" validate:"max=100"`
	RequiresApproval bool          `json:"requiresApproval"`
	SourceModule     string        `json:"sourceModule" validate:"max=50"`
	SourceID         string        `json:"sourceId" validate:"omitempty,uuid"`
	Lines            []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateJournalRequest struct {
	EntryDate        *string       `json:"entryDate"`
	Description      *string       `json:"description" validate:"omitempty,max=500"`
	Reference        *string       `json:"reference" validate:"omitempty,max=100"`
	RequiresApproval *bool         `json:"requiresApproval"`
	Lines            []lineRequest `json:"lines" validate:"omitempty,min=2,dive"`
}

type idsRequest struct {
	IDs            []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	BypassApproval bool    `json:"bypassApproval"`
}

type validateRequest struct {
	EntryID int64 `json:"entryId" validate:"required,gt=0"`
}

type postRequest struct {
	BypassApproval bool `json:"bypassApproval"`
}

type copyRequest struct {
	EntryDate string `json:"entryDate"`
}

type reverseRequest struct {
	Date string `json:"date"`
	Memo string `json:"memo" validate:"max=500"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) mountJournals(r chi.Router) {
	r.Get("/", h.handleQueryJournals)
	r.Post("/", h.handleCreateJournal)
	r.Get("/statistics", h.handleStatistics)
	r.Get("/next-number", h.handleNextNumber)
	r.Post("/validate", h.handleValidateJournal)
	r.Post("/bulk-post", h.handleBulkPost)
	r.Post("/bulk-delete", h.handleBulkDelete)
	r.Get("/{id}", h.handleGetJournal)
	r.Put("/{id}", h.handleUpdateJournal)
	r.Delete("/{id}", h.handleDeleteJournal)
	r.Post("/{id}/post", h.handlePostJournal)
	r.Post("/{id}/copy", h.handleCopyJournal)
	r.Post("/{id}/reverse", h.handleReverseJournal)
	r.Post("/{id}/submit", h.handleSubmitJournal)
	r.Post("/{id}/approve", h.handleApproveJournal)
}

func toLineInputs(in []lineRequest) []journals.LineInput {
	if in == nil {
		return nil
	}
	out := make([]journals.LineInput, 0, len(in))
	for _, l := range in {
		out = append(out, journals.LineInput{
			AccountID:    l.AccountID,
			Description:  l.Description,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Currency:     l.Currency,
			ExchangeRate: l.ExchangeRate,
			CostCenter:   l.CostCenter,
			Project:      l.Project,
			TaxCode:      l.TaxCode,
		})
	}
	return out
}

func (h *Handler) handleQueryJournals(w http.ResponseWriter, r *http.Request) {
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
	q := journals.Query{
		Status:    journals.EntryStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		EntryType: journals.EntryType(strings.ToUpper(r.URL.Query().Get("type"))),
		PeriodID:  queryInt64(r, "period_id"),
		AccountID: queryInt64(r, "account_id"),
		From:      from,
		To:        to,
		Search:    strings.TrimSpace(r.URL.Query().Get("q")),
		Page:      queryInt(r, "page"),
		PerPage:   queryInt(r, "per_page"),
	}
	res, err := h.deps.Journals.Query(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateJournal(w http.ResponseWriter, r *http.Request) {
	var req createJournalRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDateField(req.EntryDate, "entryDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sourceID, err := parseUUID(req.SourceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.deps.Idempotency != nil {
		if err := h.deps.Idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "DUPLICATE_REQUEST", "idempotency key already used")
				return
			}
			if errors.Is(err, internalShared.ErrIdempotencyKeyInvalid) {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "BAD_REQUEST", "Idempotency-Key must be at most 128 characters")
				return
			}
			h.fail(w, r, err)
			return
		}
	}
	entryType := journals.EntryType(req.EntryType)
	if entryType == "" {
		entryType = journals.EntryTypeStandard
	}
	entry, err := h.deps.Journals.Create(r.Context(), journals.CreateInput{
		EntryDate:        *date,
		EntryType:        entryType,
		Description:      req.Description,
		Reference:        req.Reference,
		RequiresApproval: req.RequiresApproval,
		SourceModule:     req.SourceModule,
		SourceID:         sourceID,
		ActorID:          actor(r),
		Lines:            toLineInputs(req.Lines),
	})
	if err != nil {
		if key != "" && h.deps.Idempotency != nil {
			if derr := h.deps.Idempotency.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
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
	stats, err := h.deps.Journals.Statistics(r.Context(), journals.StatsFilter{From: from, To: to})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleNextNumber(w http.ResponseWriter, r *http.Request) {
	date, err := requiredDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t := journals.EntryType(strings.ToUpper(r.URL.Query().Get("type")))
	if t == "" {
		t = journals.EntryTypeStandard
	}
	number, err := h.deps.Journals.NextEntryNumber(r.Context(), t, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"entryNumber": number})
}

func (h *Handler) handleValidateJournal(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.deps.Journals.Validate(r.Context(), req.EntryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleBulkPost(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.deps.Journals.BulkPost(r.Context(), req.IDs, actor(r), req.BypassApproval))
}

func (h *Handler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.deps.Journals.BulkDelete(r.Context(), req.IDs, actor(r)))
}

func (h *Handler) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.deps.Journals.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleUpdateJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateJournalRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := journals.UpdateInput{
		EntryID:          id,
		Description:      req.Description,
		Reference:        req.Reference,
		RequiresApproval: req.RequiresApproval,
		ActorID:          actor(r),
		Lines:            toLineInputs(req.Lines),
	}
	if req.EntryDate != nil {
		if in.EntryDate, err = parseDateField(*req.EntryDate, "entryDate"); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	entry, err := h.deps.Journals.Update(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Journals.Delete(r.Context(), id, actor(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req postRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	entry, result, err := h.deps.Journals.Post(r.Context(), journals.PostInput{EntryID: id, ActorID: actor(r), BypassApproval: req.BypassApproval})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": entry, "result": result})
}

func (h *Handler) handleCopyJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req copyRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	date, err := parseDateField(req.EntryDate, "entryDate")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.deps.Journals.Copy(r.Context(), journals.CopyInput{EntryID: id, EntryDate: date, ActorID: actor(r)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleReverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	date, err := parseDateField(req.Date, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.deps.Journals.Reverse(r.Context(), journals.ReverseInput{EntryID: id, ActorID: actor(r), Memo: req.Memo, Date: date})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleSubmitJournal(w http.ResponseWriter, r *http.Request) {
	h.approvalStep(w, r, h.deps.Journals.SubmitForApproval)
}

func (h *Handler) handleApproveJournal(w http.ResponseWriter, r *http.Request) {
	h.approvalStep(w, r, h.deps.Journals.Approve)
}

func (h *Handler) approvalStep(w http.ResponseWriter, r *http.Request, step func(ctx context.Context, id, actorID int64, note string) (journals.JournalEntry, error)) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req noteRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if actor(r) == 0 {
		h.fail(w, r, shared.Wrap(shared.ErrValidation, "actor required"))
		return
	}
	entry, err := step(r.Context(), id, actor(r), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}
