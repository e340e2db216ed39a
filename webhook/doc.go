// Package webhook receives task event deliveries and routes them to the
// completion tracker.
//
// The service delivers events at least once, possibly duplicated and out
// of order. The HTTP-facing handler only validates shape and enqueues
// onto a bounded queue consumed by a fixed worker pool; every delivery is
// acked with 200 regardless of local outcome, so the sender never retries
// because of processing detail here.
//
// Event IDs are remembered in the state store for a TTL to drop
// redeliveries. Events for tasks nobody tracks yet are cached (also with
// a TTL) and replayed when the task is tracked, closing the race between
// task creation and the first delivery.
//
//	dispatcher := webhook.NewDispatcher(tracker, store)
//	server := webhook.NewServer(dispatcher, webhook.WithListenAddr(":8477"))
//	go server.ListenAndServe()
package webhook
