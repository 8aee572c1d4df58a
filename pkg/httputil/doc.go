// Package httputil provides HTTP helpers shared by the API handlers.
//
// # Responses
//
// Every error body uses the same envelope so clients can branch on a stable code:
//
//	{"ok": false, "error": "quota_exceeded"}
//
//	httputil.WriteJSON(w, http.StatusOK, body)
//	httputil.WriteErrorCode(w, http.StatusPaymentRequired, httputil.CodeQuotaExceeded)
//	httputil.WriteInternalError(w) // generic label, details stay in the logs
//
// # Requests
//
//	var req UseCreditRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
