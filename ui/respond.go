package ui

import (
	"encoding/json"
	"net/http"

	"riskboard/internal/errors"
	"riskboard/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an AppError code to a status and writes {error, code}
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeInternalError
	if errors.IsAppError(err) {
		code = errors.GetCode(err)
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: errors.UserMessage(err, "Something went wrong. Please try again."),
		Code:  code,
	})
}

func statusFor(code string) int {
	switch code {
	case errors.CodeUnauthorized, errors.CodeInvalidCredential:
		return http.StatusUnauthorized
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeInvalidFileType:
		return http.StatusUnsupportedMediaType
	case errors.CodeUploadFailed, errors.CodeExternalService:
		return http.StatusBadGateway
	case upload.CodeSuperseded:
		return http.StatusConflict
	case upload.CodeClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
