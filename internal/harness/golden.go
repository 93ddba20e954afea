package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pagetree/internal/ir"
)

// TraceSnapshot converts a result to the canonical golden form: trace,
// final rows, dirty ids and revision.
//
// The output is canonical JSON indented by two spaces with a trailing
// newline, so identical runs produce identical bytes.
func TraceSnapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.Object{
			"step":    ir.Int(ev.Step),
			"op":      ir.String(ev.Op),
			"outcome": ir.String(ev.Outcome),
			"seq":     ir.Int(ev.Seq),
		}
		if ev.ID != "" {
			obj["id"] = ir.String(ev.ID)
		}
		if v, ok := ev.Result.(ir.Value); ok {
			obj["result"] = v
		}
		trace[i] = obj
	}

	rows := make(ir.Array, len(result.Rows))
	for i, r := range result.Rows {
		obj := ir.Object{
			"id":    ir.String(r.ID),
			"type":  ir.String(r.Type),
			"order": ir.Int(r.Order),
			"props": r.Props,
		}
		if r.Props == nil {
			obj["props"] = ir.Object{}
		}
		if r.ParentID != nil {
			obj["parent_id"] = ir.String(*r.ParentID)
		}
		rows[i] = obj
	}

	snapshot := ir.Object{
		"scenario_name": ir.String(scenarioName),
		"trace":         trace,
		"rows":          rows,
		"dirty": ir.Object{
			"new":      nodeIDs(result.Dirty.New),
			"modified": nodeIDs(result.Dirty.Modified),
			"deleted":  stringArray(result.Dirty.Deleted),
		},
		"revision": ir.Int(result.Revision),
	}

	compact, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func nodeIDs(nodes []*ir.Node) ir.Array {
	out := make(ir.Array, len(nodes))
	for i, n := range nodes {
		out[i] = ir.String(n.ID)
	}
	return out
}

func stringArray(ss []string) ir.Array {
	out := make(ir.Array, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := TraceSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
