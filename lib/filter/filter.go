package filter

import (
	"fmt"
	"strings"

	"github.com/foliodb/foliodb/lib/haystack"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Filter is a predicate over records. Implementations must be immutable and
// safe for concurrent use.
type Filter interface {
	// Pattern returns the textual form of the predicate.
	Pattern() string

	// Matches evaluates the predicate against a record.
	Matches(rec *haystack.Dict) bool
}

// --------------------------------------------------------------------------
// Combinators
// --------------------------------------------------------------------------

// All matches every record. Its pattern is not a bare identifier, so the
// planner treats it as a full scan.
func All() Filter {
	return allImpl{}
}

type allImpl struct{}

func (allImpl) Pattern() string { return "*" }

func (allImpl) Matches(*haystack.Dict) bool { return true }

// Has matches records carrying the tag, whatever its value.
func Has(tag string) Filter {
	return hasImpl(tag)
}

// Eq matches records whose tag equals the given value.
func Eq(tag string, val haystack.Val) Filter {
	return &eqImpl{tag: tag, val: val}
}

// And matches records matching both operands.
func And(a, b Filter) Filter {
	return &binImpl{op: "and", a: a, b: b}
}

// Or matches records matching either operand.
func Or(a, b Filter) Filter {
	return &binImpl{op: "or", a: a, b: b}
}

// Not matches records not matching the operand.
func Not(f Filter) Filter {
	return &notImpl{f: f}
}

type hasImpl string

func (h hasImpl) Pattern() string { return string(h) }

func (h hasImpl) Matches(rec *haystack.Dict) bool { return rec.Has(string(h)) }

type eqImpl struct {
	tag string
	val haystack.Val
}

func (e *eqImpl) Pattern() string { return fmt.Sprintf("%s == %v", e.tag, e.val) }

func (e *eqImpl) Matches(rec *haystack.Dict) bool {
	v, ok := rec.Get(e.tag)
	return ok && haystack.Eq(v, e.val)
}

type binImpl struct {
	op   string
	a, b Filter
}

func (f *binImpl) Pattern() string {
	return fmt.Sprintf("(%s) %s (%s)", f.a.Pattern(), f.op, f.b.Pattern())
}

func (f *binImpl) Matches(rec *haystack.Dict) bool {
	if f.op == "and" {
		return f.a.Matches(rec) && f.b.Matches(rec)
	}
	return f.a.Matches(rec) || f.b.Matches(rec)
}

type notImpl struct {
	f Filter
}

func (n *notImpl) Pattern() string { return "not " + n.f.Pattern() }

func (n *notImpl) Matches(rec *haystack.Dict) bool { return !n.f.Matches(rec) }

// --------------------------------------------------------------------------
// Planner Shape Detection
// --------------------------------------------------------------------------

// SimpleTagName reports whether the predicate's surface form is a single
// bare identifier, in which case the record store answers it from the tag
// index instead of a full cache scan.
//
// Detection is deliberately textual: any pattern containing whitespace,
// operators or parentheses falls back to a full scan. An AST-based rewrite
// must re-derive exactly this set of planner-eligible filters.
func SimpleTagName(f Filter) (string, bool) {
	p := f.Pattern()
	if p == "" {
		return "", false
	}
	for i, c := range p {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return "", false
			}
		default:
			return "", false
		}
	}
	return p, true
}

// --------------------------------------------------------------------------
// History Write Validation
// --------------------------------------------------------------------------

// HisWriteCheck validates a history item value against the host point's
// "kind" tag. The remove sentinel is always legal (it deletes the item at
// its timestamp). A host without a kind tag accepts any scalar.
func HisWriteCheck(rec *haystack.Dict, val haystack.Val) error {
	if val == nil {
		return fmt.Errorf("his item value missing")
	}
	if val.Kind() == haystack.KindRemove {
		return nil
	}
	switch val.Kind() {
	case haystack.KindDict, haystack.KindList, haystack.KindMarker, haystack.KindBin:
		return fmt.Errorf("his item value kind not supported: %s", val.Kind())
	}
	kind := rec.Str("kind")
	if kind == "" {
		return nil
	}
	if !strings.EqualFold(kind, val.Kind().String()) {
		return fmt.Errorf("his item kind mismatch: %s != %s", val.Kind(), kind)
	}
	return nil
}
