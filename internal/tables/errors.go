package tables

import "fmt"

// Kind classifies a failed table operation.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not found"
	}
	return "internal"
}

// Error is returned by every Service operation. Summary is safe to show to
// clients; Err, when set, carries the underlying cause.
type Error struct {
	Kind    Kind
	Summary string
	Table   string
	ID      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Summary
	}
	return fmt.Sprintf("%s: %v", e.Summary, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the message of the underlying cause, or "".
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func internalError(summary string, err error) *Error {
	return &Error{Kind: KindInternal, Summary: summary, Err: err}
}
