// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, stats)
//	httputil.WriteCreated(w, httputil.StatusResponse{Status: "success", ID: id})
//
// Error responses share the {"error": "..."} envelope:
//
//	httputil.WriteBadRequest(w, "request body must be a JSON object")
//	httputil.WriteNotFoundError(w, err.Error())
//	httputil.WriteInternalError(w, fmt.Errorf("failed to get stats: %w", err))
//
// # Request Parsing
//
//	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session_id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 10)
//	success, err := httputil.ParseQueryOptionalBool(r, "success")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
