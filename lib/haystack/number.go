package haystack

import "strconv"

// Number is a floating point tag value with an optional unit symbol.
// The unit is carried verbatim; no unit arithmetic is performed.
type Number struct {
	Val  float64
	Unit string
}

// Num creates a unitless number.
func Num(val float64) Number {
	return Number{Val: val}
}

// NumUnit creates a number with a unit symbol.
func NumUnit(val float64, unit string) Number {
	return Number{Val: val, Unit: unit}
}

func (Number) Kind() Kind { return KindNumber }

func (n Number) eq(o Val) bool {
	on := o.(Number)
	return n.Val == on.Val && n.Unit == on.Unit
}

// HasUnit reports whether the number carries a unit symbol.
func (n Number) HasUnit() bool { return n.Unit != "" }

// WithUnit returns a copy of the number carrying the given unit.
func (n Number) WithUnit(unit string) Number {
	return Number{Val: n.Val, Unit: unit}
}

func (n Number) String() string {
	s := strconv.FormatFloat(n.Val, 'g', -1, 64)
	if n.Unit != "" {
		s += n.Unit
	}
	return s
}
