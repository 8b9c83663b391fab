package web

// errors.go provides unified error responses for the API.
//
// Every error is logged server-side with the request ID and returned to the
// client as JSON carrying a short code. Driver messages never reach clients.

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// queryFailed is returned when an error has no more specific code.
var queryFailed = core.OperatorMessage{Code: "QRY001", Message: "query failed"}

// respondError logs err and writes a sanitized JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)
	if msg.Code == "LOAD001" {
		msg = queryFailed
	}

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeError(w, statusCode, msg.Code, msg.Message)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
