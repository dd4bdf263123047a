package haystack

import (
	"encoding/base32"
	"sync/atomic"

	"github.com/google/uuid"
)

// Ref is an opaque record identifier. Equality uses the id only; the display
// string is a mutable slot updated atomically by display resolution and is
// never part of equality or hashing.
//
// The record store interns refs: within one store there is exactly one *Ref
// instance per id. Code outside the store may construct free-standing refs
// (e.g. while decoding), which the store normalizes on entry.
type Ref struct {
	id  string
	dis atomic.Pointer[string]
}

// NewRef creates a ref with the given id and no display string.
func NewRef(id string) *Ref {
	return &Ref{id: id}
}

// NewRefDis creates a ref with the given id and display string.
func NewRefDis(id, dis string) *Ref {
	r := &Ref{id: id}
	if dis != "" {
		r.dis.Store(&dis)
	}
	return r
}

// GenRef creates a ref with a freshly generated random id.
func GenRef() *Ref {
	u := uuid.New()
	id := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(u[:])
	return &Ref{id: id}
}

func (*Ref) Kind() Kind { return KindRef }

func (r *Ref) eq(o Val) bool { return r.id == o.(*Ref).id }

// ID returns the identifier string.
func (r *Ref) ID() string { return r.id }

// Dis returns the display string, or the id when no display is set.
func (r *Ref) Dis() string {
	if d := r.dis.Load(); d != nil {
		return *d
	}
	return r.id
}

// HasDis reports whether a display string has been set.
func (r *Ref) HasDis() bool { return r.dis.Load() != nil }

// SetDis updates the display slot. Safe for concurrent use.
func (r *Ref) SetDis(dis string) { r.dis.Store(&dis) }

func (r *Ref) String() string { return "@" + r.id }
