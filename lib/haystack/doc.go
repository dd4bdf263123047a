// Package haystack implements the tag-value data model used by the folio
// record store.
//
// A record is an ordered Dict of name -> Val tags. Val is a closed union of
// scalar and collection kinds: Marker, Remove, Bool, Number (with optional
// unit), Str, Uri, Ref, Date, Time, DateTime (with time zone), Coord, Bin,
// List and nested Dict.
//
// Two tags are distinguished on every record: "id" (a Ref to the record
// itself) and "mod" (the last-modification DateTime). The "trash" marker
// denotes soft deletion.
//
// Values are immutable once constructed, with one exception: a Ref carries a
// mutable display-string slot that is updated atomically out-of-band by
// display resolution. Equality of refs uses the id only.
package haystack
