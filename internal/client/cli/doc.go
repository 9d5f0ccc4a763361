// Package cli provides the interactive medsync client.
//
// It wires configuration, the local store, the remote gateway, the
// connectivity watcher and the sync coordinator behind a small REPL. Every
// command works offline; mutations made while disconnected are queued and
// replayed once the server is reachable again.
//
// Commands:
//   - collections, list, get, find: read the local store
//   - create, update, delete: mutate a record (fields as name=value)
//   - sync, status, pending: drive and inspect the outbound queue
//   - online, offline: resume probing or force offline mode
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
