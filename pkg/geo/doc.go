// Package geo defines the static region topology for Meridian: the set of
// geographic regions traffic can be sharded across and the estimated
// inter-region round-trip latencies between them.
//
// The topology is a process-wide immutable constant. All lookups are pure
// and safe for concurrent use without synchronization.
package geo
