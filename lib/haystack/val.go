package haystack

import (
	"bytes"
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Kind Enumeration
// --------------------------------------------------------------------------

// Kind identifies the concrete type of a Val.
type Kind uint8

const (
	KindMarker Kind = iota
	KindRemove
	KindBool
	KindNumber
	KindStr
	KindUri
	KindRef
	KindDate
	KindTime
	KindDateTime
	KindCoord
	KindBin
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindMarker:
		return "Marker"
	case KindRemove:
		return "Remove"
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindStr:
		return "Str"
	case KindUri:
		return "Uri"
	case KindRef:
		return "Ref"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindDateTime:
		return "DateTime"
	case KindCoord:
		return "Coord"
	case KindBin:
		return "Bin"
	case KindList:
		return "List"
	case KindDict:
		return "Dict"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Val Union
// --------------------------------------------------------------------------

// Val is the closed union of tag value kinds. Only types declared in this
// package implement it.
type Val interface {
	// Kind returns the value kind discriminator.
	Kind() Kind

	// eq reports deep equality with another value of the same kind.
	// The receiver's kind is already known to match.
	eq(other Val) bool
}

// Eq reports deep equality of two values. Refs compare by id only, numbers
// compare value and unit, date-times compare instant and zone name.
func Eq(a, b Val) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return a.eq(b)
}

// --------------------------------------------------------------------------
// Singleton Kinds: Marker and Remove
// --------------------------------------------------------------------------

// Marker is the singleton value of a marker tag. The presence of the tag is
// the information; the value carries none.
type Marker struct{}

// M is the marker singleton.
var M = Marker{}

func (Marker) Kind() Kind { return KindMarker }

func (Marker) eq(Val) bool { return true }

func (Marker) String() string { return "marker" }

// Remove is the remove-sentinel. It only ever appears in diff change sets,
// where it deletes the tag it is assigned to, and in history writes, where
// it deletes the item at its timestamp.
type Remove struct{}

// Rm is the remove-sentinel singleton.
var Rm = Remove{}

func (Remove) Kind() Kind { return KindRemove }

func (Remove) eq(Val) bool { return true }

func (Remove) String() string { return "remove" }

// --------------------------------------------------------------------------
// Scalar Kinds
// --------------------------------------------------------------------------

// Bool is a boolean tag value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }

func (b Bool) eq(o Val) bool { return b == o.(Bool) }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Str is a string tag value.
type Str string

func (Str) Kind() Kind { return KindStr }

func (s Str) eq(o Val) bool { return s == o.(Str) }

func (s Str) String() string { return string(s) }

// Uri is a URI tag value. The payload is not parsed or validated here.
type Uri string

func (Uri) Kind() Kind { return KindUri }

func (u Uri) eq(o Val) bool { return u == o.(Uri) }

func (u Uri) String() string { return string(u) }

// Bin is an opaque byte payload.
type Bin []byte

func (Bin) Kind() Kind { return KindBin }

func (b Bin) eq(o Val) bool { return bytes.Equal(b, o.(Bin)) }
func (b Bin) String() string {
	return fmt.Sprintf("bin(%d bytes)", len(b))
}

// --------------------------------------------------------------------------
// List Kind
// --------------------------------------------------------------------------

// List is an ordered collection of values.
type List []Val

func (List) Kind() Kind { return KindList }

func (l List) eq(o Val) bool {
	ol := o.(List)
	if len(l) != len(ol) {
		return false
	}
	for i := range l {
		if !Eq(l[i], ol[i]) {
			return false
		}
	}
	return true
}

func (l List) String() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%v", v)
	}
	buf.WriteByte(']')
	return buf.String()
}
