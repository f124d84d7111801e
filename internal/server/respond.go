package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ramp-quote-go/internal/api"
	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"go.uber.org/zap"
)

// badRequest marks errors caused by the caller's input.
type badRequest struct {
	err error
}

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func invalid(err error) error {
	return &badRequest{err: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, models.ErrorResponse) {
	body := models.ErrorResponse{Error: err.Error(), Kind: providers.ErrorKind(err)}

	var (
		bad        *badRequest
		limitErr   *providers.LimitError
		routingErr *approval.RoutingError
	)
	switch {
	case errors.As(err, &bad):
		body.Kind = "invalid_request"
		return http.StatusBadRequest, body
	case errors.Is(err, api.ErrQuoteNotFound), errors.Is(err, api.ErrFlowNotFound):
		body.Kind = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, api.ErrQuoteExpired), errors.Is(err, providers.ErrQuoteClosed):
		body.Kind = "gone"
		return http.StatusGone, body
	case errors.Is(err, providers.ErrQuoteApproved), errors.Is(err, providers.ErrNotApprovable):
		body.Kind = "conflict"
		return http.StatusConflict, body
	case errors.As(err, &routingErr):
		body.Kind = "routing"
		return http.StatusNotFound, body
	case errors.As(err, &limitErr):
		body.Bound = limitErr.Bound.String()
		body.Detail = string(limitErr.Kind)
		return http.StatusUnprocessableEntity, body
	case body.Kind == "rejected":
		return http.StatusUnprocessableEntity, body
	case body.Kind == "transport" || body.Kind == "parse" || body.Kind == "aggregate":
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, body
}
