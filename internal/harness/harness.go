package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/roach88/pagetree/internal/dirty"
	"github.com/roach88/pagetree/internal/document"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
	"github.com/roach88/pagetree/internal/session"
	"github.com/roach88/pagetree/internal/store"
	"github.com/roach88/pagetree/internal/testutil"
	"github.com/roach88/pagetree/internal/tree"
)

// Outcome codes for failures that are not tree edit errors.
const (
	OutcomeValidation   = "VALIDATION"
	OutcomeNotModified  = "NOT_MODIFIED"
	OutcomeConflict     = "CONFLICT"
	OutcomeSaveInFlight = "SAVE_IN_PROGRESS"
	OutcomeError        = "ERROR"
)

// Harness executes one scenario.
type Harness struct {
	store  *store.Store
	reg    *registry.Registry
	sess   *session.Session
	clock  *testutil.DeterministicClock
	ids    *testutil.SequenceIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load kinds (builtin plus scenario kinds)
//  2. Import the setup document and save it as revision 1
//  3. Open a session with deterministic ids and clock
//  4. Execute steps, checking expectations
//  5. Evaluate assertions against the final session state
//
// An error is returned only when the scenario cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg := registry.Builtin()
	for _, path := range scenario.Kinds {
		if err := reg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load kinds: %w", err)
		}
	}

	page := scenario.Page
	if page == "" {
		page = "page"
	}

	ctx := context.Background()
	if len(scenario.Setup) > 0 {
		data, err := json.Marshal(scenario.Setup)
		if err != nil {
			return nil, fmt.Errorf("failed to encode setup: %w", err)
		}
		nodes, err := document.Import(data, page, reg)
		if err != nil {
			return nil, fmt.Errorf("invalid setup: %w", err)
		}
		if _, err := st.Save(ctx, page, flat.Flatten(nodes), 0); err != nil {
			return nil, fmt.Errorf("failed to save setup: %w", err)
		}
	}

	h := &Harness{
		store:  st,
		reg:    reg,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequenceIDGenerator("n"),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []session.Option{session.WithIDGenerator(h.ids), session.WithClock(h.clock)}
	if scenario.OrderStep > 0 {
		opts = append(opts, session.WithOrderStep(scenario.OrderStep))
	}
	h.sess, err = session.Open(ctx, page, reg, st, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	rows := h.sess.Rows()
	flat.SortRows(rows)
	result.Rows = rows
	result.Dirty = h.sess.Dirty()
	result.Revision = h.sess.Revision()

	for _, msg := range EvaluateAssertions(h.sess, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	out, err := h.apply(ctx, step)

	outcome := OutcomeOK
	if err != nil {
		outcome = ErrorCode(err)
	}

	ev := TraceEvent{Step: i, Op: step.Op, ID: step.ID, Outcome: outcome, Seq: h.sess.Seq()}
	if out != nil {
		v, convErr := ir.FromGo(out)
		if convErr != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: unrepresentable result: %v", i, step.Op, convErr))
		} else {
			ev.Result = v
		}
	}
	result.AddTrace(ev)

	want := OutcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if outcome != want {
		msg := fmt.Sprintf("steps[%d] %s: expected %s, got %s", i, step.Op, want, outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
	} else if step.Expect != nil && step.Expect.Result != nil && ev.Result != nil {
		if mismatch := subsetMismatch(ev.Result, step.Expect.Result); mismatch != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: result %s", i, step.Op, mismatch))
		}
	}

	h.logger.Info("step executed", "step", i, "op", step.Op, "id", step.ID, "outcome", outcome, "seq", ev.Seq)
}

// apply runs one step and returns its result in plain Go values.
func (h *Harness) apply(ctx context.Context, step Step) (map[string]any, error) {
	switch step.Op {
	case OpInsert:
		node, err := h.buildNode(step.Node)
		if err != nil {
			return nil, err
		}
		p, err := h.sess.Insert(node, h.target(step), ir.Position(step.Position))
		if err != nil {
			return nil, err
		}
		return placementResult(node.ID, p), nil

	case OpMove:
		p, err := h.sess.Move(step.ID, h.target(step), ir.Position(step.Position))
		if err != nil {
			return nil, err
		}
		return placementResult(step.ID, p), nil

	case OpRemove:
		removed, err := h.sess.Remove(step.ID)
		if err != nil {
			return nil, err
		}
		var ids []any
		ir.Walk([]*ir.Node{removed}, func(n *ir.Node) bool {
			ids = append(ids, n.ID)
			return true
		})
		return map[string]any{"removed": ids}, nil

	case OpUpdate:
		patch, err := patchObject(step.Props)
		if err != nil {
			return nil, err
		}
		props, err := h.sess.Update(step.ID, patch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"props": props}, nil

	case OpRollback:
		props, err := h.sess.Rollback(step.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"props": props}, nil

	case OpCommit:
		h.sess.Commit()
		return nil, nil

	case OpSave:
		ack, err := h.sess.Save(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"revision": ack.Revision, "nodes": ack.Nodes}, nil

	case OpDiscard:
		if err := h.sess.Discard(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"revision": h.sess.Revision()}, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// target resolves an empty step target to the page.
func (h *Harness) target(step Step) string {
	if step.Target == "" {
		return h.sess.PageID()
	}
	return step.Target
}

// buildNode turns a document-form node into a validated subtree, giving
// every node without an id a fresh one.
func (h *Harness) buildNode(doc map[string]any) (*ir.Node, error) {
	data, err := json.Marshal(h.withIDs(doc))
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	nodes, err := document.Import(data, h.sess.PageID(), h.reg)
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

func (h *Harness) withIDs(doc map[string]any) map[string]any {
	out := maps.Clone(doc)
	if _, ok := out["id"]; !ok {
		out["id"] = h.sess.NewID()
	}
	if children, ok := out["children"].([]any); ok {
		filled := make([]any, len(children))
		for i, c := range children {
			if m, ok := c.(map[string]any); ok {
				filled[i] = h.withIDs(m)
			} else {
				filled[i] = c
			}
		}
		out["children"] = filled
	}
	return out
}

func placementResult(id string, p tree.Placement) map[string]any {
	out := map[string]any{"id": id, "order": p.Order}
	if p.ParentID != "" {
		out["parent_id"] = p.ParentID
	}
	if len(p.Renumbered) > 0 {
		ids := make([]any, len(p.Renumbered))
		for i, r := range p.Renumbered {
			ids[i] = r
		}
		out["renumbered"] = ids
	}
	return out
}

// patchObject converts a YAML update patch. Null values become ir.Null so
// the merge deletes those keys.
func patchObject(props map[string]any) (ir.Object, error) {
	out := make(ir.Object, len(props))
	for k, v := range props {
		if v == nil {
			out[k] = ir.Null{}
			continue
		}
		val, err := ir.FromGo(v)
		if err != nil {
			return nil, registry.ValidationErrors{{
				Field:  k,
				Reason: err.Error(),
				Code:   registry.CodeType,
			}}
		}
		out[k] = val
	}
	return out, nil
}

// ErrorCode maps an error from a session operation to its outcome code.
func ErrorCode(err error) string {
	if code := tree.CodeOf(err); code != "" {
		return string(code)
	}
	var verrs registry.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return OutcomeValidation
	case errors.Is(err, dirty.ErrNotModified):
		return OutcomeNotModified
	case errors.Is(err, store.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, session.ErrSaveInProgress):
		return OutcomeSaveInFlight
	default:
		return OutcomeError
	}
}
