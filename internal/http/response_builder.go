// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps ledger errors onto RFC 9457 problem documents.

package http

import (
	"context"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode  int
	data        any
	headers     map[string]string
	contentType string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode:  http.StatusOK,
		headers:     make(map[string]string),
		contentType: "application/json",
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.data = v
	return b
}

// Problem turns the response into an application/problem+json document.
func (b *ResponseBuilder) Problem(p ProblemDetails) *ResponseBuilder {
	b.statusCode = p.Status
	b.contentType = "application/problem+json"
	b.data = p
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.data)
	if err != nil {
		http.Error(w, `{"title":"Internal Server Error","status":500}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", b.contentType)
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrSameAccountTransfer):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes the matching problem document. Details of
// server errors are not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	p := ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Instance: r.URL.Path,
	}
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldPath, r.URL.Path, log.FieldError, err)
	} else {
		p.Detail = err.Error()
		fields := log.NewFields().WithError(err)
		if errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrInvalidAmount) {
			fields.WithOperation(log.OpValidate)
		}
		fields[log.FieldPath] = r.URL.Path
		fields[log.FieldStatusCode] = status
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	NewResponse().Problem(p).Write(w)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).Data(v).Write(w)
}
