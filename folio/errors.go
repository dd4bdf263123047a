package folio

import "fmt"

// UnknownRecError reports a read or update of an id that is not in the cache.
type UnknownRecError struct {
	ID string
}

func (e *UnknownRecError) Error() string {
	return fmt.Sprintf("unknown rec @%s", e.ID)
}

// AlreadyExistsError reports an add diff for an existing id.
type AlreadyExistsError struct {
	ID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("rec already exists @%s", e.ID)
}

// ConcurrentChangeError reports a lost update: the diff's expected mod did
// not match the current record, or the storage transaction was aborted by a
// concurrent writer.
type ConcurrentChangeError struct {
	ID  string
	Msg string
}

func (e *ConcurrentChangeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("concurrent change @%s: %s", e.ID, e.Msg)
	}
	return "concurrent change: " + e.Msg
}

// CommitError reports a diff that is illegal in context, such as mixing
// transient with add/remove or touching a reserved tag.
type CommitError struct {
	Msg string
}

func (e *CommitError) Error() string {
	return "invalid commit: " + e.Msg
}

// UnsupportedError reports an operation outside the engine's scope.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return "unsupported operation: " + e.Op
}
