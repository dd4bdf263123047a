package folio

import (
	"fmt"
	"strings"

	"github.com/foliodb/foliodb/lib/haystack"
)

// --------------------------------------------------------------------------
// Diff Flags
// --------------------------------------------------------------------------

// DiffFlag is a bit set of diff modifiers.
type DiffFlag uint8

const (
	// DiffAdd creates a new record; the diff carries no expected mod.
	DiffAdd DiffFlag = 1 << iota
	// DiffRemove destroys the record; changes are ignored.
	DiffRemove
	// DiffTransient mutates the cache only: not persisted, mod not
	// advanced, version not advanced.
	DiffTransient
	// DiffForce skips the optimistic concurrency check.
	DiffForce
)

func (f DiffFlag) String() string {
	if f == 0 {
		return "update"
	}
	var parts []string
	if f&DiffAdd != 0 {
		parts = append(parts, "add")
	}
	if f&DiffRemove != 0 {
		parts = append(parts, "remove")
	}
	if f&DiffTransient != 0 {
		parts = append(parts, "transient")
	}
	if f&DiffForce != 0 {
		parts = append(parts, "force")
	}
	return strings.Join(parts, "|")
}

// --------------------------------------------------------------------------
// Diff
// --------------------------------------------------------------------------

// Diff is a declarative change to one record: the target id, the expected
// mod for the optimistic concurrency check, and a change set where the
// remove sentinel deletes a tag.
type Diff struct {
	// ID is the target record id.
	ID *haystack.Ref
	// OldMod is the expected mod of the current record. Zero for adds.
	OldMod haystack.DateTime
	// Changes maps tag names to new values; haystack.Rm deletes the tag.
	Changes *haystack.Dict
	// Flags modify the diff semantics.
	Flags DiffFlag
}

// NewDiff creates an update diff against the given record, deriving the
// target id and expected mod from it.
func NewDiff(oldRec *haystack.Dict, changes *haystack.Dict, flags DiffFlag) *Diff {
	return &Diff{
		ID:      oldRec.ID(),
		OldMod:  oldRec.Mod(),
		Changes: changes,
		Flags:   flags,
	}
}

// NewAddDiff creates an add diff. When id is nil a fresh id is generated.
func NewAddDiff(changes *haystack.Dict, id *haystack.Ref) *Diff {
	if id == nil {
		id = haystack.GenRef()
	}
	return &Diff{ID: id, Changes: changes, Flags: DiffAdd}
}

// NewRemoveDiff creates a remove diff against the given record.
func NewRemoveDiff(oldRec *haystack.Dict) *Diff {
	return &Diff{ID: oldRec.ID(), OldMod: oldRec.Mod(), Flags: DiffRemove}
}

// IsAdd reports the add flag.
func (d *Diff) IsAdd() bool { return d.Flags&DiffAdd != 0 }

// IsRemove reports the remove flag.
func (d *Diff) IsRemove() bool { return d.Flags&DiffRemove != 0 }

// IsTransient reports the transient flag.
func (d *Diff) IsTransient() bool { return d.Flags&DiffTransient != 0 }

// IsForce reports the force flag.
func (d *Diff) IsForce() bool { return d.Flags&DiffForce != 0 }

func (d *Diff) String() string {
	return fmt.Sprintf("%s %v %v", d.Flags, d.ID, d.Changes)
}

// check performs the context-free validation run on the caller's goroutine
// before a batch is enqueued.
func (d *Diff) check() error {
	if d.ID == nil || d.ID.ID() == "" {
		return &CommitError{Msg: "diff missing target id"}
	}
	if d.IsTransient() && (d.IsAdd() || d.IsRemove()) {
		return &CommitError{Msg: "transient cannot combine with add or remove: " + d.Flags.String()}
	}
	if d.IsAdd() && d.IsRemove() {
		return &CommitError{Msg: "add cannot combine with remove"}
	}
	if d.IsRemove() {
		return nil
	}
	if d.Changes == nil || d.Changes.IsEmpty() {
		return &CommitError{Msg: "diff has no changes"}
	}
	var err error
	d.Changes.EachWhile(func(name string, val haystack.Val) bool {
		switch {
		case name == haystack.TagID, name == haystack.TagMod:
			err = &CommitError{Msg: "cannot change reserved tag " + name}
		case haystack.IsNeverTag(name):
			err = &CommitError{Msg: "cannot diff transient tag " + name}
		case d.IsAdd() && val.Kind() == haystack.KindRemove:
			err = &CommitError{Msg: "cannot remove tag in add: " + name}
		}
		return err == nil
	})
	return err
}
