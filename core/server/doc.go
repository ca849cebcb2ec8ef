// Package server holds the HTTP server configuration.
//
// The start command builds the Fiber application from these settings: the
// listen port, the API key protecting every route except the docs and the
// metrics endpoint, and the read and shutdown timeouts.
package server
