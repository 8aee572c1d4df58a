package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the "error" field of failed responses
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeInvalidPayment     = "invalid_payment"
	CodeInvalidCreditType  = "invalid_credit_type"
	CodePlanNotFound       = "plan_not_found"
	CodeAlreadyOnPlan      = "already_on_plan"
	CodeNoSubscription     = "no_active_subscription"
	CodeConflict           = "subscription_conflict"
	CodeCatalogUnavailable = "catalog_unavailable"
	CodeRateLimited        = "rate_limited"
	CodeTimeout            = "timeout"
	CodeServerError        = "server_error"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Field    string `json:"field,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes a full error envelope
func WriteErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	resp.OK = false
	WriteJSON(w, status, resp)
}

// WriteErrorCode writes {"ok":false,"error":code}
func WriteErrorCode(w http.ResponseWriter, status int, code string) {
	WriteErrorResponse(w, status, ErrorResponse{Error: code})
}

// WriteBadRequest writes a bad request error (400) with a client-safe message
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: message})
}

// WriteInternalError writes a 500 with the generic server_error label.
// Internal error text is never sent to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, CodeServerError)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusTooManyRequests, CodeRateLimited)
}
