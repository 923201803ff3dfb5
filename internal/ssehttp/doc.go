// Package ssehttp is the HTTP surface of the daemon. It owns the two halves
// of every logical client connection:
//
//   - the stream endpoint (GET): a long-lived text/event-stream response,
//     authenticated once at accept time and registered in the session
//     registry for the lifetime of the connection;
//   - the out-of-band message endpoint (POST, same path): individual
//     protocol messages tagged with a session id and routed to the live
//     stream they belong to.
//
// The package also answers CORS preflights for any path, and optionally
// mounts the credential-issuance endpoint when an issuer is configured.
//
// The inbound-message callback is attached exactly once per stream, at
// registration time; there is no reattachment after connect. Closing the
// underlying connection is the only cancellation signal and always
// deregisters the session before the handler returns.
package ssehttp
