package flow

import (
	"context"
	"testing"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

func findTool(t *testing.T, f *Flow, name string) agent.Tool {
	t.Helper()
	for _, tool := range f.Tools {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("flow %s has no tool %s", f.Name, name)
	return agent.Tool{}
}

// invoke runs one of the flow's tools and fails the test on a handler error.
func invoke(t *testing.T, f *Flow, name string, args map[string]any) string {
	t.Helper()
	reply, err := findTool(t, f, name).Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("tool %s returned error: %v", name, err)
	}
	return reply
}

func TestScript_CarriesInstructionsAndTools(t *testing.T) {
	requests, err := store.NewRequestStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRequestStore: %v", err)
	}
	f := NewModelRequest(requests)
	script := f.Script()
	if script.Instructions != f.Instructions {
		t.Errorf("script instructions differ from flow instructions")
	}
	if len(script.Tools) != len(f.Tools) {
		t.Errorf("script has %d tools, flow has %d", len(script.Tools), len(f.Tools))
	}
}

func TestStringArg_TrimsAndToleratesMissing(t *testing.T) {
	args := map[string]any{"text": "  hello  ", "count": 3}
	if got := stringArg(args, "text"); got != "hello" {
		t.Errorf("stringArg(text) = %q, want %q", got, "hello")
	}
	if got := stringArg(args, "count"); got != "" {
		t.Errorf("stringArg(count) = %q, want empty for non-string", got)
	}
	if got := stringArg(args, "absent"); got != "" {
		t.Errorf("stringArg(absent) = %q, want empty", got)
	}
	if got := stringArg(nil, "any"); got != "" {
		t.Errorf("stringArg(nil map) = %q, want empty", got)
	}
}
