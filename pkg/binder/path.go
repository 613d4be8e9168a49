package binder

import (
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
)

// Path binds chi route parameters into struct fields tagged `path:"name"`.
// Fields without a path tag are left alone.
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return nil
		}
		values := make(map[string][]string, len(rctx.URLParams.Keys))
		for i, key := range rctx.URLParams.Keys {
			values[key] = []string{rctx.URLParams.Values[i]}
		}
		return bindToStruct(v, "path", values, ErrFailedToParsePath)
	}
}

func hasTag(f reflect.StructField, tagName string) bool {
	_, ok := f.Tag.Lookup(tagName)
	return ok
}
