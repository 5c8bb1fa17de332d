package web

// errors.go provides unified error responses for the API.
//
// Every error is:
//   - logged with full technical detail and the request id (server-side)
//   - returned as a user-facing message with an action and support code
//
// The status code is derived from the error's type, so handlers just call
// respondError(w, r, err).

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

// ErrorResponse is the JSON body of every error. It carries both
// machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Fields  []string `json:"fields,omitempty"`

	status int
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}

var (
	errNotFound    = errors.New("not found")
	errPathRefused = errors.New("path is outside the allowed directories")
)

// respondError logs err and writes its user message with a matching status.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := errs.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	resp := &ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		status:  status,
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		resp.set("The request is invalid", "RQ001", "Check the request fields")
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, fe.Field()+" failed "+fe.Tag())
		}
	case errors.Is(err, errBadBody):
		resp.set("The request body is not valid JSON", "RQ002", "")
	case errors.Is(err, errPathRefused):
		resp.set("The path is outside the allowed directories", "RQ003", "Use a file under one of the configured directories")
	case errors.Is(err, errNotFound), errors.Is(err, core.ErrRunNotFound):
		resp.set("Not found", "RQ404", "")
	}

	render.Render(w, r, resp)
}

func (e *ErrorResponse) set(message, code, action string) {
	e.Error, e.Message, e.Code, e.Action = message, message, code, action
}

// respondStatus writes a plain error without a wrapped cause.
func respondStatus(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	render.Render(w, r, &ErrorResponse{Error: message, Message: message, Code: code, status: status})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var (
		verrs validator.ValidationErrors
		cerr  *errs.ConfigurationError
		rerr  *errs.ReadError
		perr  *errs.PermissionError
	)
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, core.ErrRunNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, errPathRefused), errors.As(err, &perr):
		return http.StatusForbidden
	case errors.Is(err, core.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &cerr), errors.As(err, &rerr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
