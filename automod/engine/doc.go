// Package engine turns quiescent groups into moderation events.
//
// Dispatches from the trackers are queued on a keyed worker Pool. Each one is
// rendered, fingerprinted and looked up in the dedup cache. Misses go to the
// classifier, and the fresh result is stored. If the group still stands as
// it was when dispatched, an Event is handed to the Sink.
package engine
