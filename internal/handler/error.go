package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/middleware"
	"github.com/dukerupert/atelier/internal/service"
)

// errorBody is the JSON error envelope returned by every API endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code           string            `json:"code"`
	Reason         string            `json:"reason,omitempty"`
	Message        string            `json:"message"`
	FallbackMethod string            `json:"fallback_method,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
}

// ErrorResponse writes err as a JSON error. Internal errors are logged with
// their cause and rendered with a generic message.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"reason", domain.ErrorReason(err),
		"op", domain.ErrorOp(err),
		"status", status,
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	detail := errorDetail{
		Code:    code,
		Reason:  domain.ErrorReason(err),
		Message: domain.ErrorMessage(err),
		Fields:  domain.GetValidationFields(err),
	}
	if method, ok := service.FallbackMethod(err); ok {
		detail.FallbackMethod = string(method)
	}

	WriteJSON(w, status, errorBody{Error: detail})
}

// ValidationErrorResponse writes a 400 listing each invalid field. Errors that
// are not a domain.ValidationError fall back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).Info("request validation failed", "fields", fields)

	WriteJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    domain.EINVALID,
		Reason:  domain.ReasonValidation,
		Message: "Some fields are invalid",
		Fields:  fields,
	}})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT, domain.ECANCELED:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.ENOTIMPL:
		return http.StatusNotImplemented // 501
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
