package tree

import (
	"errors"
	"fmt"
)

// EditErrorCode categorizes rejected edits.
type EditErrorCode string

const (
	// ErrCodeNotFound indicates an id that is not in the tree.
	ErrCodeNotFound EditErrorCode = "NOT_FOUND"

	// ErrCodeInvalidTarget indicates a position the target cannot accept,
	// such as "inside" on a leaf.
	ErrCodeInvalidTarget EditErrorCode = "INVALID_TARGET"

	// ErrCodeCycle indicates a move into the moved node's own subtree.
	ErrCodeCycle EditErrorCode = "CYCLE"

	// ErrCodeCapability indicates an update that would change a node's
	// identity, type or children capability.
	ErrCodeCapability EditErrorCode = "CAPABILITY"

	// ErrCodeDuplicateID indicates an inserted id that already exists.
	ErrCodeDuplicateID EditErrorCode = "DUPLICATE_ID"

	// ErrCodeDuplicateOrder indicates two siblings sharing an order key in
	// a loaded forest.
	ErrCodeDuplicateOrder EditErrorCode = "DUPLICATE_ORDER"
)

// EditError is a rejected structural operation. The tree is unchanged
// whenever one is returned.
type EditError struct {
	Code     EditErrorCode
	Op       string
	NodeID   string
	TargetID string
	Message  string
}

func (e *EditError) Error() string {
	if e.TargetID != "" {
		return fmt.Sprintf("%s %s: %s: %s (target=%s)", e.Op, e.NodeID, e.Code, e.Message, e.TargetID)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.NodeID, e.Code, e.Message)
}

func hasCode(err error, code EditErrorCode) bool {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsNotFound reports whether err is an unknown-id error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsInvalidTargetError reports whether err is an invalid-target error.
func IsInvalidTargetError(err error) bool { return hasCode(err, ErrCodeInvalidTarget) }

// IsCycleError reports whether err is a cycle rejection from Move.
func IsCycleError(err error) bool { return hasCode(err, ErrCodeCycle) }

// IsCapabilityError reports whether err is a capability violation.
func IsCapabilityError(err error) bool { return hasCode(err, ErrCodeCapability) }

// IsDuplicateIDError reports whether err is a duplicate id error.
func IsDuplicateIDError(err error) bool { return hasCode(err, ErrCodeDuplicateID) }

// IsDuplicateOrderError reports whether err is a duplicate sibling order.
func IsDuplicateOrderError(err error) bool { return hasCode(err, ErrCodeDuplicateOrder) }

// CodeOf returns the code of an EditError in err's chain, or "".
func CodeOf(err error) EditErrorCode {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
