package haystack

import (
	"bytes"
	"fmt"
)

// --------------------------------------------------------------------------
// Distinguished Tags
// --------------------------------------------------------------------------

const (
	// TagID is the required self-reference tag of every record.
	TagID = "id"
	// TagMod is the last-modification stamp of every non-transient record.
	TagMod = "mod"
	// TagTrash is the soft-deletion marker.
	TagTrash = "trash"
)

// NeverTags are transient summary tags maintained directly in the cache by
// the history subsystem. They are never persisted and never legal in a diff.
var NeverTags = []string{"hisSize", "hisStart", "hisStartVal", "hisEnd", "hisEndVal"}

// IsNeverTag reports whether name is one of the transient history summary tags.
func IsNeverTag(name string) bool {
	for _, n := range NeverTags {
		if n == name {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Dict
// --------------------------------------------------------------------------

// Dict is an ordered name -> Val mapping. It is the unit of storage,
// indexing and diffing. A Dict is immutable after construction; use a
// DictBuilder (or Dup) to derive modified copies.
type Dict struct {
	names []string
	tags  map[string]Val
}

// EmptyDict is the shared empty dict.
var EmptyDict = &Dict{}

// Get returns the value for a tag name.
func (d *Dict) Get(name string) (Val, bool) {
	v, ok := d.tags[name]
	return v, ok
}

// Has reports whether the tag is present.
func (d *Dict) Has(name string) bool {
	_, ok := d.tags[name]
	return ok
}

// Len returns the number of tags.
func (d *Dict) Len() int { return len(d.names) }

// IsEmpty reports whether the dict has no tags.
func (d *Dict) IsEmpty() bool { return len(d.names) == 0 }

// Names returns the tag names in insertion order. The slice is shared;
// callers must not mutate it.
func (d *Dict) Names() []string { return d.names }

// Each invokes f for every tag in insertion order.
func (d *Dict) Each(f func(name string, val Val)) {
	for _, n := range d.names {
		f(n, d.tags[n])
	}
}

// EachWhile invokes f for every tag in insertion order until f returns false.
func (d *Dict) EachWhile(f func(name string, val Val) bool) {
	for _, n := range d.names {
		if !f(n, d.tags[n]) {
			return
		}
	}
}

// ID returns the record's id ref, or nil when absent.
func (d *Dict) ID() *Ref {
	if v, ok := d.tags[TagID]; ok {
		if r, ok := v.(*Ref); ok {
			return r
		}
	}
	return nil
}

// Mod returns the record's mod stamp, or the zero DateTime when absent.
func (d *Dict) Mod() DateTime {
	if v, ok := d.tags[TagMod]; ok {
		if dt, ok := v.(DateTime); ok {
			return dt
		}
	}
	return DateTime{}
}

// IsTrash reports whether the record carries the trash marker.
func (d *Dict) IsTrash() bool { return d.Has(TagTrash) }

// Str returns the tag value as a string when it is a Str, else "".
func (d *Dict) Str(name string) string {
	if v, ok := d.tags[name]; ok {
		if s, ok := v.(Str); ok {
			return string(s)
		}
	}
	return ""
}

// Dis returns the record's human display string: the "dis" tag when present,
// else the id display slot, else "".
func (d *Dict) Dis() string {
	if s := d.Str("dis"); s != "" {
		return s
	}
	if r := d.ID(); r != nil {
		return r.Dis()
	}
	return ""
}

func (*Dict) Kind() Kind { return KindDict }

// eq is order-insensitive: two dicts are equal when they carry the same tag
// set with deeply equal values.
func (d *Dict) eq(o Val) bool {
	od := o.(*Dict)
	if len(d.tags) != len(od.tags) {
		return false
	}
	for n, v := range d.tags {
		ov, ok := od.tags[n]
		if !ok || !Eq(v, ov) {
			return false
		}
	}
	return true
}

// Dup returns a builder pre-populated with this dict's tags.
func (d *Dict) Dup() *DictBuilder {
	b := NewDictBuilder()
	d.Each(func(n string, v Val) { b.Set(n, v) })
	return b
}

func (d *Dict) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range d.names {
		if i > 0 {
			buf.WriteString(", ")
		}
		v := d.tags[n]
		if v.Kind() == KindMarker {
			buf.WriteString(n)
		} else {
			fmt.Fprintf(&buf, "%s: %v", n, v)
		}
	}
	buf.WriteByte('}')
	return buf.String()
}

// --------------------------------------------------------------------------
// DictBuilder
// --------------------------------------------------------------------------

// DictBuilder accumulates tags for a Dict. Not safe for concurrent use.
type DictBuilder struct {
	d Dict
}

// NewDictBuilder creates an empty builder.
func NewDictBuilder() *DictBuilder {
	return &DictBuilder{d: Dict{tags: map[string]Val{}}}
}

// Set adds or replaces a tag. A nil value is ignored. Setting an existing
// name keeps its original position.
func (b *DictBuilder) Set(name string, val Val) *DictBuilder {
	if val == nil {
		return b
	}
	if _, ok := b.d.tags[name]; !ok {
		b.d.names = append(b.d.names, name)
	}
	b.d.tags[name] = val
	return b
}

// SetMarker adds a marker tag.
func (b *DictBuilder) SetMarker(name string) *DictBuilder {
	return b.Set(name, M)
}

// Delete removes a tag if present.
func (b *DictBuilder) Delete(name string) *DictBuilder {
	if _, ok := b.d.tags[name]; !ok {
		return b
	}
	delete(b.d.tags, name)
	for i, n := range b.d.names {
		if n == name {
			b.d.names = append(b.d.names[:i], b.d.names[i+1:]...)
			break
		}
	}
	return b
}

// Has reports whether the builder currently holds the tag.
func (b *DictBuilder) Has(name string) bool {
	_, ok := b.d.tags[name]
	return ok
}

// ToDict finalizes the builder. The builder must not be used afterwards.
func (b *DictBuilder) ToDict() *Dict {
	d := b.d
	b.d = Dict{}
	if d.tags == nil {
		d.tags = map[string]Val{}
	}
	return &d
}
