package server

import (
	"net/http"
)

// Handler is an [http.Handler] that names the paths it serves, so a
// handler can encapsulate its own route definitions.
type Handler interface {
	http.Handler
	Routes() []string
}
