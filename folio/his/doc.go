// Package his implements the time-series subsystem for historized point
// records: per-record sorted sets of timestamped samples with bulk
// ingestion, time-range deletion and span-oriented range reads.
//
// Samples live in one sorted set per record (his:{id}), scored by epoch
// milliseconds and valued by an encoded item dict. History operations run
// on their own pool connection and are deliberately outside the commit
// transaction; the only record-side effect is the transient summary tags
// (hisSize, hisStart/Val, hisEnd/Val) patched directly into the cache.
package his
