// Package gateway talks to the remote REST API that owns the canonical copy
// of every collection.
//
// Per collection the remote exposes:
//
//	POST   /{collection}       create, returns the record with its server id
//	PUT    /{collection}/{id}  partial update
//	DELETE /{collection}/{id}  delete
//	GET    /{collection}       full list
//
// plus GET /health for reachability probes. Every failure, transport or
// HTTP status, matches ErrUnavailable; a 404 additionally matches
// ErrNotFound.
package gateway
