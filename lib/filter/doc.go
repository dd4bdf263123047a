// Package filter defines the predicate boundary between the folio engine
// and the platform's filter grammar.
//
// The engine consumes filters as black boxes: a Filter evaluates against a
// record and exposes its textual pattern. The full grammar parser lives in
// the platform; this package provides the combinators needed by the engine,
// its tests and the CLI, plus the shape detection the query planner uses to
// pick a tag index.
package filter
