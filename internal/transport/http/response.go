package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"job-escrow-service/internal/entity"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeLedgerErr maps the ledger error taxonomy onto HTTP status codes.
func writeLedgerErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrInsufficientFunds):
		writeErr(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, entity.ErrJobNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrInvalidTransition):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, entity.ErrUnauthorized):
		writeErr(w, http.StatusForbidden, err.Error())
	default:
		// escrow mismatches and storage failures are not the caller's fault
		zap.S().Named("http").Errorw("ledger operation failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
