package folio

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/foliodb/foliodb/lib/haystack"
)

// tagIndex mirrors the persisted idx:tag:{name} sets in memory so the query
// planner never hits the wire. Only the write goroutine mutates it; readers
// iterate lock-free.
type tagIndex struct {
	tags *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

func newTagIndex() *tagIndex {
	return &tagIndex{tags: xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]]()}
}

// indexable reports whether the tag participates in tag indexes: everything
// except id/mod and the transient history summary tags.
func indexable(name string) bool {
	return name != haystack.TagID && name != haystack.TagMod && !haystack.IsNeverTag(name)
}

// add records id under every indexable tag of rec.
func (x *tagIndex) add(id string, rec *haystack.Dict) {
	rec.Each(func(name string, _ haystack.Val) {
		if indexable(name) {
			x.set(name).Store(id, struct{}{})
		}
	})
}

// update moves id between tag sets according to the old and new tag names.
func (x *tagIndex) update(id string, oldRec, newRec *haystack.Dict) {
	oldRec.Each(func(name string, _ haystack.Val) {
		if indexable(name) && !newRec.Has(name) {
			x.set(name).Delete(id)
		}
	})
	newRec.Each(func(name string, _ haystack.Val) {
		if indexable(name) && !oldRec.Has(name) {
			x.set(name).Store(id, struct{}{})
		}
	})
}

// remove drops id from every indexable tag of rec.
func (x *tagIndex) remove(id string, rec *haystack.Dict) {
	rec.Each(func(name string, _ haystack.Val) {
		if indexable(name) {
			x.set(name).Delete(id)
		}
	})
}

// ids returns the id set for a tag name, or nil when the tag was never
// indexed.
func (x *tagIndex) ids(name string) *xsync.MapOf[string, struct{}] {
	s, _ := x.tags.Load(name)
	return s
}

func (x *tagIndex) set(name string) *xsync.MapOf[string, struct{}] {
	s, _ := x.tags.LoadOrCompute(name, func() *xsync.MapOf[string, struct{}] {
		return xsync.NewMapOf[string, struct{}]()
	})
	return s
}
