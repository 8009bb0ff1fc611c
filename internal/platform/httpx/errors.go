// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ErrBadRequest marks malformed input detected by a handler.
var ErrBadRequest = errors.New("bad request")

// RespondError maps ledger errors to RFC7807 responses. Every rejection carries
// the stable error code next to the message.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrValidation.Code, verrs.Error())
		return
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", "BAD_REQUEST", err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "TIMEOUT", "")
		return
	}
	code := shared.CodeOf(err)
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", code, err.Error())
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", code, err.Error())
	case shared.KindUnbalanced:
		Problem(w, http.StatusUnprocessableEntity, "Unbalanced", code, err.Error())
	case shared.KindPeriodClosed:
		Problem(w, http.StatusConflict, "Period Closed", code, err.Error())
	case shared.KindInvalidState:
		Problem(w, http.StatusConflict, "Invalid State", code, err.Error())
	case shared.KindApprovalRequired:
		Problem(w, http.StatusForbidden, "Approval Required", code, err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "INTERNAL", "")
	}
}
