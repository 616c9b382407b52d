package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/course-ledger/auth"
	"github.com/warp/course-ledger/ledger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidInput      = "invalid_input"
	CodeUnauthenticated   = "unauthenticated"
	CodeUnauthorized      = "unauthorized"
	CodeSelfPurchase      = "self_purchase"
	CodeAccessDenied      = "access_denied"
	CodeNotFound          = "not_found"
	CodeAlreadyEnrolled   = "already_enrolled"
	CodePaymentMismatch   = "payment_mismatch"
	CodeInsufficientFunds = "insufficient_funds"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

// classify maps a ledger error onto an HTTP status and code. More specific
// kinds are checked first: ErrSelfPurchase also matches ErrUnauthorized.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingIdentity), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, ledger.ErrPaymentMismatch):
		return http.StatusBadRequest, CodePaymentMismatch
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, CodeInsufficientFunds
	case errors.Is(err, ledger.ErrSelfPurchase):
		return http.StatusForbidden, CodeSelfPurchase
	case errors.Is(err, ledger.ErrAccessDenied):
		return http.StatusForbidden, CodeAccessDenied
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ledger.ErrAlreadyEnrolled):
		return http.StatusConflict, CodeAlreadyEnrolled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// resultLabel is the metrics label for an operation outcome.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	_, code := classify(err)
	return code
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError writes err with the status and code classify assigns.
// Internal errors are not echoed to the client.
func writeLedgerError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: http.StatusText(status), Code: code}
	if status != http.StatusInternalServerError {
		resp.Error = err.Error()
	}
	var mismatch *ledger.PaymentMismatchError
	if errors.As(err, &mismatch) {
		resp.Details = map[string]string{
			"expected": mismatch.Expected.String(),
			"tendered": mismatch.Tendered.String(),
			"unit":     ledger.NativeUnit,
		}
	}
	var input *ledger.InputError
	if errors.As(err, &input) {
		resp.Details = map[string]string{"field": input.Field, "reason": input.Reason}
	}
	writeJSON(w, status, resp)
}
