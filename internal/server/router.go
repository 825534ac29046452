package server

import (
	"net/http"
)

// Router mounts [Handler] implementations onto an [http.ServeMux]. The
// auth command serves exactly one handler through it, so there is no
// middleware stack and no per-method registration.
type Router struct {
	mux *http.ServeMux
}

// NewRouter creates an empty [Router].
func NewRouter() *Router {
	return &Router{mux: http.NewServeMux()}
}

// Handler registers every route the handler serves.
func (r *Router) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
