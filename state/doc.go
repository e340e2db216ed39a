// Package state provides key-value storage with per-key TTL for the
// short-lived bookkeeping around task tracking.
//
// The Store interface backs three concerns: webhook event dedup markers,
// cached events for tasks no tracker has registered yet, and file upload
// records held for their retention window. Entries expire on their own
// schedule; readers never see an expired key.
//
// # Backends
//
//   - MemoryStore: in-process map with a cleanup ticker (testing, single process)
//   - NATSStore: NATS JetStream KV (shared across tracker processes)
//
// # Usage
//
//	// Testing: In-memory
//	store := state.NewMemoryStore()
//
//	// Production: NATS JetStream KV
//	store, _ := state.NewNATSStore(state.NATSStoreConfig{
//	    Conn:   conn,
//	    Bucket: "taskwatch-state",
//	})
//
//	// Mark an event as seen for an hour
//	store.Put("events.seen.evt-1", []byte("1"), time.Hour)
//	if _, err := store.Get("events.seen.evt-1"); err == nil {
//	    // duplicate delivery
//	}
package state
