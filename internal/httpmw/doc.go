// Package httpmw holds the HTTP middleware and request gates of the public
// listener.
//
// Outer middleware (Recover, RequestID, ClientIP, WithLogger, AccessLog,
// TraceResponseHeaders) wraps every request. Inside it the pipeline driver
// runs the gates in a fixed order: CORSGate, SecurityHeaderGate, then the
// session and auth gates from their own packages, then the chi router.
//
// Header values supplied by the caller (user agent, cookies, bodies) are not
// logged. The Origin header is, since CORS rejections are diagnosed from it.
package httpmw
