package flow

import (
	"testing"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

func TestModelRequest_WalksTheScript(t *testing.T) {
	requests, err := store.NewRequestStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRequestStore: %v", err)
	}
	f := NewModelRequest(requests)

	steps := []struct {
		tool, arg, value, want string
	}{
		{"record_initial_request", "text", "  a small dragon figurine  ", "Great! What type of 3D model do you want?"},
		{"record_model_type", "model_type", "figurine", "Understood. What dimensions should the model have?"},
		{"record_dimensions", "dimensions", "10cm tall", "Got it. What material or texture should be used?"},
		{"record_material", "material", "matte resin", "Noted. Any extra details?"},
	}
	for _, step := range steps {
		if got := invoke(t, f, step.tool, map[string]any{step.arg: step.value}); got != step.want {
			t.Errorf("%s reply = %q, want %q", step.tool, got, step.want)
		}
	}
	if got := invoke(t, f, "record_extra", map[string]any{"key": "color", "value": "emerald green"}); got != "Extra detail added." {
		t.Errorf("record_extra reply = %q", got)
	}
	if got := invoke(t, f, "save_request", nil); got != "Saved your request as request_1!" {
		t.Fatalf("save_request reply = %q", got)
	}

	saved, err := requests.Load("request_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Description != "a small dragon figurine" {
		t.Errorf("description = %q, want trimmed input", saved.Description)
	}
	if saved.ModelType != "figurine" || saved.Dimensions != "10cm tall" || saved.Material != "matte resin" {
		t.Errorf("unexpected saved request: %+v", saved)
	}
	if saved.Extras["color"] != "emerald green" {
		t.Errorf("extras = %v, want color recorded", saved.Extras)
	}
}

func TestModelRequest_ResaveKeepsID(t *testing.T) {
	requests, err := store.NewRequestStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRequestStore: %v", err)
	}
	f := NewModelRequest(requests)

	invoke(t, f, "record_initial_request", map[string]any{"text": "a vase"})
	if got := invoke(t, f, "save_request", nil); got != "Saved your request as request_1!" {
		t.Fatalf("first save reply = %q", got)
	}
	invoke(t, f, "record_model_type", map[string]any{"model_type": "vase"})
	if got := invoke(t, f, "save_request", nil); got != "Saved your request as request_1!" {
		t.Fatalf("second save reply = %q, want same id", got)
	}

	n, err := requests.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("request files = %d, want 1 after re-save", n)
	}
	saved, err := requests.Load("request_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.ModelType != "vase" {
		t.Errorf("model type = %q, want update persisted on re-save", saved.ModelType)
	}
}

func TestModelRequest_ExtraWithoutKeyIsRejected(t *testing.T) {
	requests, err := store.NewRequestStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRequestStore: %v", err)
	}
	f := NewModelRequest(requests)

	if got := invoke(t, f, "record_extra", map[string]any{"key": "   ", "value": "shiny"}); got != "What should I label that detail?" {
		t.Errorf("reply = %q", got)
	}
	invoke(t, f, "save_request", nil)
	saved, err := requests.Load("request_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved.Extras) != 0 {
		t.Errorf("extras = %v, want none recorded", saved.Extras)
	}
}
