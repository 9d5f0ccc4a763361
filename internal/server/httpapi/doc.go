// Package httpapi exposes the reference server's records over REST.
//
// Routes:
//
//	GET    /health                 liveness probe
//	GET    /metrics                prometheus metrics (when a registry is given)
//	GET    /{collection}           list, oldest first
//	POST   /{collection}           create; honours the Idempotency-Key header
//	GET    /{collection}/{id}      fetch one record
//	PUT    /{collection}/{id}      merge the given fields into the record
//	DELETE /{collection}/{id}      delete
//
// Records travel as flat JSON objects. Errors are {"error": "..."} with 400
// for malformed bodies, 404 for unknown collections and records, and 500
// otherwise.
package httpapi
