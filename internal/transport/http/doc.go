// Package http implements the HTTP request handlers for the license service.
// It provides a thin layer between HTTP transport and business logic: handlers
// parse and validate requests, delegate to the service layer, and transform
// domain errors into API responses.
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Store
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Handlers hold no business logic. Domain sentinels are mapped to APIError
// responses in one place (renderError) so every endpoint fails the same way.
package http
