package handler

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope: {"error":{"code":...,"message":...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders v with status 200.
func JSON(v any) Response {
	return jsonResponse{status: http.StatusOK, body: v}
}

// JSONWithStatus renders v with the given status.
func JSONWithStatus(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// JSONError renders the error envelope.
func JSONError(status int, code, message string) Response {
	return jsonResponse{status: status, body: ErrorBody{Error: ErrorDetail{Code: code, Message: message}}}
}
