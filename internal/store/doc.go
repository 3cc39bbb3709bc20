// Package store persists conversation ownership: which user started
// which remote conversation, plus a display title derived from the first
// question.
//
// Conversation ids are assigned by the remote service; the store never
// invents them. RecordIfNew is an upsert that only takes effect on first
// insert, so the title and creation time are write-once and ownership is
// never transferred by a later write.
//
// The backing SQLite database is treated as a capability: durable keyed
// storage with read-after-write consistency per key. Rows written before
// the title column existed read back with the "Untitled" default instead
// of failing.
package store
