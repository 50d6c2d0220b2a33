package export

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is. Handlers map them to HTTP
// statuses; callers needing the offending ids unwrap to *TransitionError.
var (
	// ErrInvalidArgument covers malformed or un-decodable ids, empty id
	// sets, and export-state precondition violations.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a referenced HIS id has no local row.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals an optimistic-version mismatch; callers may retry.
	ErrConflict = errors.New("conflict")

	// ErrInternal signals a data-layer inconsistency, such as a row that
	// cannot be re-read immediately after a successful write.
	ErrInternal = errors.New("internal inconsistency")
)

// TransitionError reports which HIS ids violated a batch-transition
// precondition or were missing from the store.
type TransitionError struct {
	Reason string
	HISIDs []int64
	kind   error
}

func (e *TransitionError) Error() string {
	ids := make([]string, len(e.HISIDs))
	for i, id := range e.HISIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s: [%s]", e.Reason, strings.Join(ids, ", "))
}

func (e *TransitionError) Unwrap() error {
	return e.kind
}

func invalidTransition(reason string, ids []int64) error {
	return &TransitionError{Reason: reason, HISIDs: ids, kind: ErrInvalidArgument}
}

func linesNotFound(ids []int64) error {
	return &TransitionError{Reason: "medicine lines not found", HISIDs: ids, kind: ErrNotFound}
}
