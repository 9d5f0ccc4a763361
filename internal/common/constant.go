package common

// IdempotencyKeyHeader carries the client key that lets the remote collapse
// replays of the same create into one record.
const IdempotencyKeyHeader = "Idempotency-Key"

// HealthPath is the remote endpoint probed for reachability.
const HealthPath = "/health"
