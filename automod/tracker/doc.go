// Package tracker turns a stream of block insertions and removals into
// dispatches of quiescent artifacts.
//
// Each tracker owns one or more grid indices and a Scheduler, all confined to
// a single Actor goroutine. Feed methods, queries and periodic scans run as
// closures on that actor, so the indices never need locking. Groups leave the
// actor as copies wrapped in a Dispatch, together with the versions of their
// member blocks, so consumers can detect that an artifact changed or vanished
// while they were working on it.
package tracker
