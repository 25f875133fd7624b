package middleware

import "net/http"

// Chain wraps handler with the given middlewares. The first middleware in
// the list runs first on the way in.
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
