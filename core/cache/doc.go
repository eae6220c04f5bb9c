// Package cache provides a small key-value cache with LRU eviction and
// per-entry TTLs.
//
// Input collectors use it to remember the ids of recently acknowledged
// messages, so a retried message that was already processed is acknowledged
// again without reaching the consumer:
//
//	acked := cache.NewIDs(1024, time.Minute)
//	acked.Remember(string(id))
//	if acked.Seen(string(id)) {
//		// re-ack
//	}
//
// [LRU] is the bounded implementation behind [IDs]. [Nop] remembers nothing.
package cache
