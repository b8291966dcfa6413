// Package httputil provides JSON response writers, request parsing, and the
// middleware the billing API is assembled from.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
// Error responses all share the {"error": message} body:
//
//	httputil.WriteBadRequest(w, "invalid input")
//	httputil.WriteDomainError(w, err) // maps billing errors to status codes
//
// # Request Parsing
//
//	var req generateProformaRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//	slabID, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	status := httputil.ParseQueryString(r, "status", "")
//	active, err := httputil.ParseQueryBool(r, "active", true)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/api: HTTP handlers built on these helpers
package httputil
