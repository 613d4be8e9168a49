package handler

import (
	"errors"
	"net/http"
)

// HandlerFunc handles a bound request of type R and returns the response
// to render.
type HandlerFunc[R any] func(ctx Context, req R) Response

// Response renders itself onto the writer.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind decodes part of the request into v. Binders return ErrNotApplicable
// when the request carries nothing for them.
type Bind func(r *http.Request, v any) error

// ErrorHandler writes the response for a failed bind or render.
type ErrorHandler func(ctx Context, err error)

// WrapOption configures Wrap.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	binders      []Bind
	errorHandler ErrorHandler
}

// WithBinders appends request binders; they run in order.
func WithBinders(binders ...Bind) WrapOption {
	return func(c *wrapConfig) { c.binders = append(c.binders, binders...) }
}

// WithErrorHandler replaces the plain-text default error handler.
func WithErrorHandler(h ErrorHandler) WrapOption {
	return func(c *wrapConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func defaultErrorHandler(ctx Context, err error) {
	status := http.StatusInternalServerError
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Status
	}
	http.Error(ctx.ResponseWriter(), http.StatusText(status), status)
}

// Wrap adapts a typed handler to http.HandlerFunc: it binds R, calls h and
// renders the result, sending every error to the error handler.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption) http.HandlerFunc {
	cfg := &wrapConfig{errorHandler: defaultErrorHandler}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				if errors.Is(err, ErrNotApplicable) {
					continue
				}
				cfg.errorHandler(ctx, err)
				return
			}
		}

		resp := h(ctx, req)
		if resp == nil {
			cfg.errorHandler(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(ctx, err)
		}
	}
}
