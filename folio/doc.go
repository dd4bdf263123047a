// Package folio implements the Redis-backed record store: a tag-oriented
// record database with atomic multi-record commits, a hot read cache,
// secondary tag indexes for query acceleration, and optimistic concurrency.
//
// Records are haystack.Dict values identified by interned refs. Reads are
// answered lock-free from the in-memory cache; writes are serialized
// through a single write goroutine and persisted in one transactional
// round-trip over a pooled wire session, keeping three views of every
// record consistent: the cache, the primary hash and the tag indexes.
//
// The time-series subsystem for historized points lives in folio/his.
package folio
