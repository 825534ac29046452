// Package server provides the OAuth callback listener behind the auth command.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the authorization-code callback: it validates the
// state parameter (CSRF protection), exchanges the code for a token, and sends
// the outcome through [OAuthHandler.Result].
//
// It processes exactly one callback, so a replayed redirect cannot overwrite
// an issued token.
//
// # Current Usage
//
// When the user runs 'songsift auth spotify', a temporary HTTP server starts on
// the configured callback address (127.0.0.1:8080 by default), serves the
// redirect once, and shuts down after the token arrives. If the listener cannot
// bind or the redirect never lands, the command falls back to manual code entry.
//
// # Handler Interface
//
// The [Handler] interface wraps the stdlib handler interface and adds routes,
// letting a handler encapsulate its own route definitions; [Router] mounts one
// onto an [http.ServeMux].
package server
