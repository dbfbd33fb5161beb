// Package reportcache keeps the latest GSM report per device address and
// persists the set so it survives a restart.
//
// Every Upsert triggers a coalesced dump of the whole set to a Store: one
// write runs at a time and a burst of upserts during a write produces a
// single follow-up write. On startup Restore loads the store, drops entries
// older than the retention window and replays the rest into the registry.
//
// Two stores are provided: FileStore (a JSON array on disk) and RedisStore
// (a single key with a TTL equal to the retention window).
package reportcache
