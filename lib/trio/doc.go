// Package trio implements the textual record encoding used by the folio
// engine for persisted dicts and history items.
//
// The engine treats the codec as a black box behind the ITrioSerializer
// interface; the only contract is that Deserialize(Serialize(d)) equals d
// for every supported value kind.
//
// The format is line oriented: one tag per line, markers as a bare name,
// scalars as "name: <kind> <payload>", nested dicts and lists via two-space
// indent continuation.
package trio
