// Package middleware contains HTTP middleware for the Fiber application.
//
// It provides cross-cutting concerns that sit between the request and the handler.
//
// # Components
//
//   - auth: Validates the API key (X-API-Key or bearer token) on protected routes.
//   - rayid: Assigns every request a ray id, stores it in the fiber locals and
//     echoes it in the X-Ray-ID response header for tracing.
//
// rayid is registered first so that every log line of a request, including
// auth failures, carries the id.
package middleware
