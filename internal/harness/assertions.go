package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/session"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the session's final
// state and returns one message per failure.
func EvaluateAssertions(sess *session.Session, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStatus:
			err = assertStatus(sess, a)
		case AssertChildren:
			err = assertChildren(sess, a)
		case AssertProps:
			err = assertProps(sess, a)
		case AssertAbsent:
			err = assertAbsent(sess, a)
		case AssertCount:
			err = assertCount(sess, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertStatus(sess *session.Session, a Assertion) error {
	got := string(sess.Status(a.ID))
	if got == a.Status {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatus,
		Expected: fmt.Sprintf("%s is %s", a.ID, a.Status),
		Actual:   got,
	}
}

func assertChildren(sess *session.Session, a Assertion) error {
	var kids []*ir.Node
	if a.Parent == "" {
		kids = sess.Tree().Roots()
	} else {
		n, ok := sess.Tree().Get(a.Parent)
		if !ok {
			return &AssertionError{Type: AssertChildren, Expected: fmt.Sprintf("node %s", a.Parent), Actual: "not in tree"}
		}
		kids = n.Children
	}

	got := make([]string, 0, len(kids))
	for _, k := range kids {
		got = append(got, k.ID)
	}
	if slices.Equal(got, a.IDs) {
		return nil
	}
	parent := a.Parent
	if parent == "" {
		parent = "page"
	}
	return &AssertionError{
		Type:     AssertChildren,
		Expected: fmt.Sprintf("children of %s = %v", parent, a.IDs),
		Actual:   fmt.Sprintf("%v", got),
	}
}

func assertProps(sess *session.Session, a Assertion) error {
	n, ok := sess.Get(a.ID)
	if !ok {
		return &AssertionError{Type: AssertProps, Expected: fmt.Sprintf("node %s", a.ID), Actual: "not in tree"}
	}
	if mismatch := subsetMismatch(n.Props, a.Props); mismatch != "" {
		return &AssertionError{
			Type:     AssertProps,
			Expected: fmt.Sprintf("props of %s contain %v", a.ID, a.Props),
			Actual:   mismatch,
		}
	}
	return nil
}

func assertAbsent(sess *session.Session, a Assertion) error {
	if _, ok := sess.Get(a.ID); !ok {
		return nil
	}
	return &AssertionError{Type: AssertAbsent, Expected: fmt.Sprintf("%s not in tree", a.ID), Actual: "present"}
}

func assertCount(sess *session.Session, a Assertion) error {
	if got := sess.Tree().Len(); got != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d nodes", *a.Count),
			Actual:   fmt.Sprintf("%d nodes", got),
		}
	}
	return nil
}

// subsetMismatch checks that actual (an ir.Object) contains every key of
// expected with an equal value. A nil expected value means the key must be
// absent. It returns "" on a match and a description otherwise.
func subsetMismatch(actual any, expected map[string]any) string {
	obj, ok := actual.(ir.Object)
	if !ok {
		return fmt.Sprintf("is %T, not an object", actual)
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		want := expected[k]
		got, exists := obj[k]
		if want == nil {
			if exists {
				return fmt.Sprintf("key %q should be absent", k)
			}
			continue
		}
		if !exists {
			return fmt.Sprintf("key %q missing", k)
		}
		wantVal, err := ir.FromGo(want)
		if err != nil {
			return fmt.Sprintf("key %q: bad expectation: %v", k, err)
		}
		if !reflect.DeepEqual(got, wantVal) {
			return fmt.Sprintf("key %q = %v, want %v", k, ir.ToGo(got), want)
		}
	}
	return ""
}
