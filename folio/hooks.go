package folio

import "github.com/foliodb/foliodb/lib/haystack"

// CommitEvent is passed to the commit hooks, once per diff.
type CommitEvent struct {
	// Diff is the change being committed.
	Diff *Diff
	// OldRec is the record before the change, nil for adds.
	OldRec *haystack.Dict
	// CxInfo is the opaque caller context handed to Commit.
	CxInfo any
}

// HisWriteEvent is passed to the post-history-write hook.
type HisWriteEvent struct {
	// Rec is the host point record.
	Rec *haystack.Dict
	// Count is the number of items written or deleted.
	Count int
	// Start and End bound the written items (zero when Count is 0).
	Start haystack.DateTime
	End   haystack.DateTime
	// CxInfo is the opaque caller context handed to Write.
	CxInfo any
}

// Hooks are the host-supplied callbacks dispatched by the commit and
// history-write pipelines. All slots are optional.
//
// PreCommit and PostCommit run on the write goroutine: they must not submit
// new commits synchronously (that would deadlock) and should not block, or
// accept that they delay subsequent commits.
type Hooks struct {
	// PreCommit runs per diff before storage is touched; an error aborts
	// the whole batch.
	PreCommit func(ev CommitEvent) error

	// PostCommit runs per diff after a successful commit; errors are
	// logged and swallowed.
	PostCommit func(ev CommitEvent) error

	// PostHisWrite runs after a history write; errors are logged and
	// swallowed.
	PostHisWrite func(ev HisWriteEvent) error
}
