// Package harness runs edit scenarios against a real editing session.
//
// A scenario is a YAML file: an optional setup document that becomes the
// stored page at revision 1, a list of edit steps, and assertions on the
// final state. Each run uses a fresh in-memory store, a deterministic id
// generator ("n-1", "n-2", ...) and a deterministic clock, so the trace
// of a scenario is byte-identical across runs and can be compared against
// a golden file.
//
// # Scenario Format
//
//	name: move_into_card
//	description: Moving a button into a card reparents it
//	setup:
//	  - id: c1
//	    type: column
//	    children:
//	      - {id: b1, type: button, label: Go}
//	steps:
//	  - op: insert
//	    node: {type: card, title: Details, children: []}
//	    target: c1
//	    position: before
//	  - op: move
//	    id: b1
//	    target: n-1
//	    position: inside
//	  - op: move
//	    id: n-1
//	    target: b1
//	    position: inside
//	    expect: {error: CYCLE}
//	assertions:
//	  - {type: children, parent: n-1, ids: [b1]}
//	  - {type: status, id: b1, status: modified}
//
// Steps without an expect clause must succeed. Supported ops: insert,
// remove, move, update, rollback, commit, save, discard.
//
// # Golden Files
//
// RunWithGolden stores traces under testdata/golden/{name}.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
