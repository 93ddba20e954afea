// Package registry defines the closed set of component kinds a page may
// contain and validates raw nodes against it.
//
// Each kind is identified by a type tag and carries a prop schema plus an
// is-container capability. The Registry is the single dispatch point for
// type-specific rules: tree algorithms ask it whether a tag is a container
// and never branch on tag names themselves.
//
// Kinds are usually declared in CUE:
//
//	kind: button: {
//		container: false
//		props: {
//			label:     string
//			variant?:  "primary" | "secondary"
//			disabled?: bool
//		}
//		checks: label: "len(value) <= 80"
//	}
//
// Non-optional props are required. A disjunction of string literals becomes
// an enum. Checks are expr-lang boolean expressions evaluated with `value`
// bound to the prop and `props` bound to all of the node's props.
//
// Validation never stops at the first problem: every violation in a node
// and its whole subtree is reported.
package registry
