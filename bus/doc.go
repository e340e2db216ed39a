// Package bus provides message bus clients for fanning out task
// resolutions to interested processes.
//
// # Overview
//
// When a tracked task reaches its terminal observation, the resolution can
// be published on the bus so other processes learn about it without polling
// the remote service themselves. All implementations use channel-based APIs
// for Go-idiomatic concurrent use.
//
// # Available Implementations
//
//   - NATSBus: Production-grade messaging using NATS
//   - MemoryBus: In-memory implementation for testing and single-process use
//
// # Patterns
//
// Pub/Sub - broadcast to all subscribers:
//
//	bus.PublishResolution(b, &bus.ResolutionEvent{TaskID: "t-1", Status: "completed"})
//	sub, _ := b.Subscribe(bus.ResolutionSubjectAll)
//	for msg := range sub.Messages() {
//	    ev, _ := bus.DecodeResolution(msg)
//	    // Handle resolution
//	}
//
// Queue Groups - load balanced across workers:
//
//	sub, _ := b.QueueSubscribe(bus.ResolutionSubjectAll, "notifiers")
//	// Only one worker in the group receives each resolution
package bus
