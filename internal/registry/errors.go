package registry

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Validation error codes.
const (
	CodeUnknownType     = "unknown_type"     // type tag not registered
	CodeRequired        = "required"         // required prop or id missing
	CodeType            = "type"             // prop value has the wrong type
	CodeEnum            = "enum"             // value not in allowed set
	CodeMin             = "min"              // int below minimum
	CodeMax             = "max"              // int above maximum
	CodeCheck           = "check"            // check expression failed
	CodeUnknownProp     = "unknown_prop"     // prop not in a strict schema
	CodeLeafChildren    = "leaf_children"    // children supplied on a leaf kind
	CodeMissingChildren = "missing_children" // container without children list
	CodeDuplicateID     = "duplicate_id"     // id used twice
	CodeReservedProp    = "reserved_prop"    // props uses id/type/children
)

// ValidationError is one violation found while validating a node.
// NodeID and Type identify the offending node, Field names the prop
// (or "id", "type", "children"), and Reason is human-readable.
type ValidationError struct {
	NodeID string `json:"node_id"`
	Type   string `json:"type,omitempty"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("[%s] %s (%s) %s: %s", e.Code, e.NodeID, e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Code, e.NodeID, e.Field, e.Reason)
}

// ValidationErrors is the complete set of violations from one pass.
// It implements error so it can travel through error returns intact.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	switch len(es) {
	case 0:
		return "no validation errors"
	case 1:
		return es[0].Error()
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(es), strings.Join(msgs, "; "))
}

// CompileError represents a kind definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
