// Package api defines the wire types of the remote agent task service
// and a Transport over its REST surface.
//
// The service exposes four families of calls: two-phase file upload
// (create a record, then PUT to a short-lived presigned URL), task
// creation (including follow-up turns on an existing task), task
// retrieval, and webhook registration. Transport is an interface so the
// higher layers can be tested against a fake; HTTPTransport is the real
// implementation.
//
// Errors are mapped onto the shared taxonomy: 429 becomes RATE_LIMITED,
// 5xx UNAVAILABLE, and a 403 from the object store UPLOAD_EXPIRED, so
// the retry layer can tell transient failures from permanent ones.
package api
